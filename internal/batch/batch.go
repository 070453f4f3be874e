// Package batch collects outstanding foreign keys for one vertex and
// combines them into a single fetch request.
package batch

import (
	"fmt"

	"fastpreload/internal/graph"
	"fastpreload/internal/index"
	"fastpreload/internal/record"
)

// Group is one elementary fetch: target records whose PrimaryKey is in
// Keys, narrowed by Scope, tagged with Disambiguator.
type Group struct {
	Disambiguator string
	PrimaryKey    string
	Scope         graph.Scope
	Keys          []any
	// Edges names the edges that contributed keys, in declaration order.
	Edges []string

	seen map[string]struct{}
}

func (g *Group) add(values []any) {
	for _, v := range values {
		k := index.ValueKey(v)
		if _, ok := g.seen[k]; ok {
			continue
		}
		g.seen[k] = struct{}{}
		g.Keys = append(g.Keys, v)
	}
}

// Routes reports whether rows fetched for g belong to edge e. An edge only
// receives rows from the group it contributed keys to, so two edges sharing
// a disambiguator but joining on different keys never see each other's rows.
func (g *Group) Routes(e *graph.Edge) bool {
	return !e.SkipLoading && e.Disambiguator == g.Disambiguator && e.PrimaryKey == g.PrimaryKey
}

// Request is the union of a vertex's groups. Each result row carries the
// disambiguator and the ordinal of the group that produced it.
type Request struct {
	Entity  graph.EntityType
	Table   string
	Columns []string
	Groups  []*Group
}

// Group returns the group at ordinal i.
func (r *Request) Group(i int) (*Group, bool) {
	if i < 0 || i >= len(r.Groups) {
		return nil, false
	}
	return r.Groups[i], true
}

// KeyCount is the number of key values across all groups.
func (r *Request) KeyCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Keys)
	}
	return n
}

type groupKey struct {
	disambiguator string
	primaryKey    string
}

// Collect builds the combined request for a vertex. It also indexes every
// owner-side record the associator will look up, so it must run after those
// records are in the store. A nil request with a nil error means there is
// nothing to fetch.
func Collect(v *graph.Vertex, store *record.Store, idx *index.Index) (*Request, error) {
	groups := make(map[groupKey]*Group)
	var ordered []*Group

	for e := range v.Edges() {
		if e.SkipLoading {
			continue
		}
		owners := store.Records(e.JoinEntity)
		values := joinKeyValues(owners, e.JoinKey)
		if len(values) == 0 {
			continue
		}

		idx.IndexBy(e.JoinEntity, e.JoinKey, owners)
		for hop := e.Through; hop != nil; hop = hop.Through {
			idx.IndexBy(hop.JoinEntity, hop.JoinKey, store.Records(hop.JoinEntity))
		}

		key := groupKey{disambiguator: e.Disambiguator, primaryKey: e.PrimaryKey}
		g, ok := groups[key]
		if !ok {
			g = &Group{
				Disambiguator: e.Disambiguator,
				PrimaryKey:    e.PrimaryKey,
				Scope:         e.Scope,
				seen:          make(map[string]struct{}),
			}
			groups[key] = g
			ordered = append(ordered, g)
		} else if !g.Scope.Equal(e.Scope) {
			return nil, fmt.Errorf("%w: %s: edge %s conflicts with %v on scope %q",
				graph.ErrMalformedGraph, v.Entity, e.Name, g.Edges, e.Disambiguator)
		}
		g.Edges = append(g.Edges, e.Name)
		g.add(values)
	}

	if len(ordered) == 0 {
		return nil, nil
	}
	return &Request{
		Entity:  v.Entity,
		Table:   v.Table,
		Columns: v.Columns,
		Groups:  ordered,
	}, nil
}

func joinKeyValues(records []*record.Record, field string) []any {
	values := make([]any, 0, len(records))
	for _, r := range records {
		if v, ok := r.Get(field); ok && v != nil {
			values = append(values, v)
		}
	}
	return values
}
