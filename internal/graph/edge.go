package graph

import (
	"fmt"
	"sort"
	"strings"
)

// EdgeKind distinguishes direct relationships from through relationships.
type EdgeKind int

const (
	// DirectEdge joins owner and target records by a single key pair.
	DirectEdge EdgeKind = iota
	// ThroughEdge reaches its owner through an intermediate entity.
	ThroughEdge
)

func (k EdgeKind) String() string {
	switch k {
	case ThroughEdge:
		return "through"
	default:
		return "direct"
	}
}

// Edge is one declared relationship into a vertex.
//
// For a direct edge the owners are JoinEntity records whose JoinKey equals
// the target's PrimaryKey. For a through edge, JoinEntity is the
// intermediate entity and Through describes the hop from the real owner to
// that intermediate entity.
type Edge struct {
	// Name is the relationship name; it keys the owner's association slot.
	Name string
	// JoinEntity holds the foreign key values collected for batching.
	JoinEntity EntityType
	// JoinKey is the field on JoinEntity records.
	JoinKey string
	// PrimaryKey is the field on target records that JoinKey references.
	PrimaryKey string
	// Collection selects append semantics; otherwise first match wins.
	Collection bool
	// Scope narrows which target records qualify.
	Scope Scope
	// Disambiguator routes fetched rows back to the right edge group.
	Disambiguator string
	// Through is set for multi-hop relationships.
	Through *Edge
	// SkipLoading marks an edge that is already satisfied.
	SkipLoading bool
}

// Kind reports whether the edge is direct or through.
func (e *Edge) Kind() EdgeKind {
	if e.Through != nil {
		return ThroughEdge
	}
	return DirectEdge
}

// OwnerEntity is the entity type whose association slot this edge fills.
func (e *Edge) OwnerEntity() EntityType {
	if e.Through != nil {
		return e.Through.OwnerEntity()
	}
	return e.JoinEntity
}

func (e *Edge) String() string {
	if e.Through != nil {
		return fmt.Sprintf("%s.%s(through %s)", e.OwnerEntity(), e.Name, e.JoinEntity)
	}
	return fmt.Sprintf("%s.%s", e.JoinEntity, e.Name)
}

// Order is one ORDER BY term of a scope.
type Order struct {
	Column string
	Desc   bool
}

// ParseOrder parses "column", "column asc" or "column desc".
func ParseOrder(term string) (Order, error) {
	fields := strings.Fields(term)
	switch len(fields) {
	case 1:
		return Order{Column: fields[0]}, nil
	case 2:
		switch strings.ToLower(fields[1]) {
		case "asc":
			return Order{Column: fields[0]}, nil
		case "desc":
			return Order{Column: fields[0], Desc: true}, nil
		}
	}
	return Order{}, fmt.Errorf("invalid order term %q", term)
}

// Scope is an optional filter and ordering applied to fetched target
// records. Where is an equality map; Expr is a raw SQL predicate with
// placeholder Args.
type Scope struct {
	Where   map[string]any
	Expr    string
	Args    []any
	OrderBy []Order
}

// IsZero reports whether the scope adds nothing to a fetch.
func (s Scope) IsZero() bool {
	return len(s.Where) == 0 && strings.TrimSpace(s.Expr) == "" && len(s.OrderBy) == 0
}

// Key returns a canonical representation used to compare scopes.
func (s Scope) Key() string {
	if s.IsZero() {
		return ""
	}
	var b strings.Builder
	cols := make([]string, 0, len(s.Where))
	for col := range s.Where {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		fmt.Fprintf(&b, "w:%s=%#v;", col, s.Where[col])
	}
	if expr := strings.TrimSpace(s.Expr); expr != "" {
		fmt.Fprintf(&b, "x:%s%#v;", expr, s.Args)
	}
	for _, o := range s.OrderBy {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, "o:%s %s;", o.Column, dir)
	}
	return b.String()
}

// Equal reports whether two scopes select and order the same records.
func (s Scope) Equal(other Scope) bool {
	return s.Key() == other.Key()
}
