// Package index maps (entity type, field, value) to positions in the
// record store so owners can be found without scanning.
package index

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"fastpreload/internal/graph"
	"fastpreload/internal/record"
)

// Key identifies one index: a field on an entity type.
type Key struct {
	Entity graph.EntityType
	Field  string
}

type fieldIndex struct {
	// indexed is the number of leading store positions already indexed.
	indexed   int
	positions map[string][]int
}

// Index is built lazily per Key. It borrows positions from the record store
// and never holds records itself. Index is not safe for concurrent use.
type Index struct {
	fields map[Key]*fieldIndex
}

// New creates an empty index.
func New() *Index {
	return &Index{fields: make(map[Key]*fieldIndex)}
}

// IndexBy indexes records[i].Fields[field] at position i, where records is
// the store sequence for entity (or a prefix of it). Positions indexed by an
// earlier call are skipped, so calling it once per edge that shares the
// same key is harmless and records appended since the last call are merged.
func (x *Index) IndexBy(entity graph.EntityType, field string, records []*record.Record) {
	key := Key{Entity: entity, Field: field}
	fi, ok := x.fields[key]
	if !ok {
		fi = &fieldIndex{positions: make(map[string][]int)}
		x.fields[key] = fi
	}
	for pos := fi.indexed; pos < len(records); pos++ {
		r := records[pos]
		if r == nil {
			continue
		}
		value, ok := r.Get(field)
		if !ok || value == nil {
			continue
		}
		k := ValueKey(value)
		fi.positions[k] = append(fi.positions[k], pos)
	}
	if len(records) > fi.indexed {
		fi.indexed = len(records)
	}
}

// Get returns the store positions whose field equals value. It never fails;
// a missing index or value yields nil.
func (x *Index) Get(entity graph.EntityType, field string, value any) []int {
	if value == nil {
		return nil
	}
	fi, ok := x.fields[Key{Entity: entity, Field: field}]
	if !ok {
		return nil
	}
	return fi.positions[ValueKey(value)]
}

// Has reports whether an index exists for the key.
func (x *Index) Has(entity graph.EntityType, field string) bool {
	_, ok := x.fields[Key{Entity: entity, Field: field}]
	return ok
}

// Indexed returns how many store positions have been indexed for the key.
func (x *Index) Indexed(entity graph.EntityType, field string) int {
	if fi, ok := x.fields[Key{Entity: entity, Field: field}]; ok {
		return fi.indexed
	}
	return 0
}

// ValueKey canonicalizes a field value so the same logical key compares
// equal whether it came from a driver as int64, []byte or string.
func ValueKey(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat renders integral floats the same way as integers.
func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
