// Package render turns preloaded records into nested documents and encodes
// them as JSON, YAML or MessagePack.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"fastpreload/internal/graph"
	"fastpreload/internal/record"
)

// Format is an output encoding.
type Format string

const (
	JSON    Format = "json"
	YAML    Format = "yaml"
	MsgPack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case JSON, YAML, MsgPack:
		return f, nil
	case "":
		return JSON, nil
	case "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", name)
	}
}

// Tree converts records into nested maps. Loaded associations appear under
// their relationship name, replacing a field of the same name; slots that
// were never loaded are left out. depth bounds how many association levels
// are followed, so cyclic graphs terminate.
func Tree(g *graph.Graph, records []*record.Record, depth int) []map[string]any {
	t := newTree(g)
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, t.node(r, depth))
	}
	return out
}

// Write encodes v in the given format.
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case MsgPack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

type tree struct {
	// collections[entity][name] reports whether the relationship is a collection.
	collections map[graph.EntityType]map[string]bool
}

func newTree(g *graph.Graph) *tree {
	t := &tree{collections: make(map[graph.EntityType]map[string]bool)}
	if g == nil {
		return t
	}
	for _, v := range g.Vertices() {
		for e := range v.Edges() {
			owner := e.OwnerEntity()
			if t.collections[owner] == nil {
				t.collections[owner] = make(map[string]bool)
			}
			t.collections[owner][e.Name] = e.Collection
		}
	}
	return t
}

func (t *tree) node(r *record.Record, depth int) map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}
	if depth <= 0 {
		return out
	}
	for _, name := range r.AssociationNames() {
		slot := r.Association(name)
		if !slot.Loaded() {
			continue
		}
		if t.isCollection(r.Entity, name, slot) {
			children := make([]map[string]any, 0, len(slot.Records()))
			for _, child := range slot.Records() {
				children = append(children, t.node(child, depth-1))
			}
			out[name] = children
			continue
		}
		if target := slot.Target(); target != nil {
			out[name] = t.node(target, depth-1)
		} else {
			out[name] = nil
		}
	}
	return out
}

func (t *tree) isCollection(entity graph.EntityType, name string, slot *record.Slot) bool {
	if byName, ok := t.collections[entity]; ok {
		if collection, ok := byName[name]; ok {
			return collection
		}
	}
	return len(slot.Records()) > 0
}
