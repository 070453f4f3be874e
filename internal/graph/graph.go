// Package graph describes the association graph consumed by the preloader.
// Vertices and edges are immutable once a Graph is built; the preloader only
// reads them.
package graph

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// ErrMalformedGraph reports an association graph that cannot be loaded
// consistently, such as two edges that collapse into one fetch group but
// declare different scopes.
var ErrMalformedGraph = errors.New("malformed association graph")

// EntityType identifies one kind of record (usually one table).
type EntityType string

// Vertex is the load unit for one entity type. Its edges describe how
// already-loaded records relate to records of this entity type.
type Vertex struct {
	Entity  EntityType
	Table   string
	Columns []string

	edges []*Edge
}

// NewVertex creates a vertex. Edge order is fixed here and decides which
// record wins a has-one slot when several candidates arrive.
func NewVertex(entity EntityType, table string, columns []string, edges ...*Edge) *Vertex {
	if table == "" {
		table = string(entity)
	}
	return &Vertex{
		Entity:  entity,
		Table:   table,
		Columns: slices.Clone(columns),
		edges:   slices.Clone(edges),
	}
}

// Edges yields the vertex's edges in declaration order. The sequence can be
// ranged over any number of times.
func (v *Vertex) Edges() iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		for _, e := range v.edges {
			if !yield(e) {
				return
			}
		}
	}
}

// EdgeList returns a copy of the vertex's edges.
func (v *Vertex) EdgeList() []*Edge {
	return slices.Clone(v.edges)
}

// Graph is an ordered set of vertices. The order is the load order used by
// the preloader: every vertex must come after the vertices its owners are
// loaded by.
type Graph struct {
	vertices []*Vertex
	byEntity map[EntityType]*Vertex
}

// New builds a graph and validates it.
func New(vertices ...*Vertex) (*Graph, error) {
	g := &Graph{
		vertices: make([]*Vertex, 0, len(vertices)),
		byEntity: make(map[EntityType]*Vertex, len(vertices)),
	}
	for _, v := range vertices {
		if v == nil {
			continue
		}
		if v.Entity == "" {
			return nil, fmt.Errorf("%w: vertex without entity type", ErrMalformedGraph)
		}
		if _, ok := g.byEntity[v.Entity]; ok {
			return nil, fmt.Errorf("%w: duplicate vertex %s", ErrMalformedGraph, v.Entity)
		}
		if err := validateVertex(v); err != nil {
			return nil, err
		}
		g.vertices = append(g.vertices, v)
		g.byEntity[v.Entity] = v
	}
	return g, nil
}

// Vertices returns the vertices in load order.
func (g *Graph) Vertices() []*Vertex {
	return slices.Clone(g.vertices)
}

// Vertex looks up the vertex for an entity type.
func (g *Graph) Vertex(entity EntityType) (*Vertex, bool) {
	v, ok := g.byEntity[entity]
	return v, ok
}

func validateVertex(v *Vertex) error {
	type groupKey struct {
		disambiguator string
		primaryKey    string
	}
	scopes := make(map[groupKey]*Edge)

	for e := range v.Edges() {
		if e == nil {
			return fmt.Errorf("%w: nil edge on vertex %s", ErrMalformedGraph, v.Entity)
		}
		if err := validateEdge(e); err != nil {
			return fmt.Errorf("vertex %s: %w", v.Entity, err)
		}
		if e.SkipLoading {
			continue
		}
		key := groupKey{disambiguator: e.Disambiguator, primaryKey: e.PrimaryKey}
		if first, ok := scopes[key]; ok {
			if !first.Scope.Equal(e.Scope) {
				return fmt.Errorf("%w: vertex %s: edges %s and %s share scope %q on %s with different filters",
					ErrMalformedGraph, v.Entity, first.Name, e.Name, e.Disambiguator, e.PrimaryKey)
			}
			continue
		}
		scopes[key] = e
	}
	return nil
}

func validateEdge(e *Edge) error {
	depth := 0
	for cur := e; cur != nil; cur = cur.Through {
		if cur.JoinEntity == "" || cur.JoinKey == "" || cur.PrimaryKey == "" {
			return fmt.Errorf("%w: edge %q needs join entity, join key and primary key", ErrMalformedGraph, e.Name)
		}
		depth++
		if depth > maxThroughDepth {
			return fmt.Errorf("%w: edge %q through chain is cyclic or deeper than %d", ErrMalformedGraph, e.Name, maxThroughDepth)
		}
	}
	if strings.Contains(e.Disambiguator, "?") {
		return fmt.Errorf("%w: edge %q disambiguator %q must not contain '?'", ErrMalformedGraph, e.Name, e.Disambiguator)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: edge on %s.%s has no relationship name", ErrMalformedGraph, e.JoinEntity, e.JoinKey)
	}
	return nil
}

const maxThroughDepth = 16
