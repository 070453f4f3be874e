// Package preloader loads one association graph vertex at a time: it
// batches outstanding foreign keys into a single fetch, attaches fetched
// records to their owners, and marks every edge loaded.
package preloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fastpreload/internal/batch"
	"fastpreload/internal/graph"
	"fastpreload/internal/index"
	"fastpreload/internal/logging"
	"fastpreload/internal/observability"
	"fastpreload/internal/record"

	"go.opentelemetry.io/otel/attribute"
)

// State is the lifecycle of one vertex load.
type State int

const (
	StatePending State = iota
	StateFetching
	StateDistributing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateDistributing:
		return "distributing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats summarizes one vertex load.
type Stats struct {
	Entity     graph.EntityType
	Groups     int
	Keys       int
	Rows       int
	Associated int
	Fetched    bool
	Duration   time.Duration
}

// Association loads one vertex. It is single use: Load runs once.
type Association struct {
	vertex  *graph.Vertex
	store   *record.Store
	index   *index.Index
	fetcher Fetcher
	metrics *observability.PreloadMetrics

	state State
	stats Stats
}

// NewAssociation wires a vertex load to the pass-scoped store and index.
func NewAssociation(v *graph.Vertex, store *record.Store, idx *index.Index, fetcher Fetcher, opts ...Option) *Association {
	o := applyOptions(opts)
	return &Association{
		vertex:  v,
		store:   store,
		index:   idx,
		fetcher: fetcher,
		metrics: o.metrics,
		stats:   Stats{Entity: v.Entity},
	}
}

// State returns the current lifecycle state.
func (a *Association) State() State {
	return a.state
}

// Stats returns what the load did so far.
func (a *Association) Stats() Stats {
	return a.stats
}

// Load fetches the vertex's records and distributes them to their owners.
// On success every non-skipped edge is marked loaded on every owner record.
// Any error leaves the association failed and must abort the pass.
func (a *Association) Load(ctx context.Context) (err error) {
	if a.state != StatePending {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyLoaded, a.vertex.Entity, a.state)
	}
	start := time.Now()
	entity := string(a.vertex.Entity)

	ctx, span := startPreloadSpan(ctx, "preload.vertex", attribute.String("preload.entity", entity))
	defer func() {
		a.stats.Duration = time.Since(start)
		if err != nil {
			a.state = StateFailed
		}
		span.SetAttributes(observability.VertexSpanAttributes(observability.VertexLoad{
			Groups:     a.stats.Groups,
			Keys:       a.stats.Keys,
			Rows:       a.stats.Rows,
			Associated: a.stats.Associated,
			Fetched:    a.stats.Fetched,
		})...)
		finishPreloadSpan(span, err)
		a.metrics.RecordVertexLoad(ctx, entity, a.stats.Duration, err)
	}()

	logger := logging.FromContext(ctx).WithFields(slog.String("entity", entity))
	a.store.Ensure(a.vertex.Entity)

	req, err := batch.Collect(a.vertex, a.store, a.index)
	if err != nil {
		return err
	}
	if req == nil {
		a.markAllLoaded()
		a.state = StateCompleted
		a.metrics.RecordSkipped(ctx, entity, "no_keys")
		logger.Debug("no outstanding keys, edges marked loaded")
		return nil
	}

	a.stats.Groups = len(req.Groups)
	a.stats.Keys = req.KeyCount()
	a.state = StateFetching
	a.metrics.RecordBatchKeys(ctx, entity, a.stats.Keys)

	rows, err := a.fetcher.Fetch(ctx, req)
	if err != nil {
		return &FetchError{Entity: a.vertex.Entity, Err: err}
	}
	if rows == nil {
		return &FetchError{Entity: a.vertex.Entity, Err: errNoRows}
	}
	a.stats.Fetched = true

	a.state = StateDistributing
	for rows.Next() {
		row := rows.Row()
		g, ok := req.Group(row.Group)
		if !ok || g.Disambiguator != row.Tag {
			_ = rows.Close()
			return &FetchError{Entity: a.vertex.Entity, Err: fmt.Errorf("%w: group %d tagged %q", errUnroutableRow, row.Group, row.Tag)}
		}
		rec := record.New(a.vertex.Entity, row.Fields)
		a.store.Append(rec)
		a.stats.Rows++
		for e := range a.vertex.Edges() {
			a.stats.Associated += a.associate(rec, g, e)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return &FetchError{Entity: a.vertex.Entity, Err: err}
	}
	if err := rows.Close(); err != nil {
		return &FetchError{Entity: a.vertex.Entity, Err: err}
	}

	a.markAllLoaded()
	a.state = StateCompleted
	a.metrics.RecordFetch(ctx, entity, a.stats.Rows, a.stats.Associated)
	logger.Debug("vertex loaded",
		slog.Int("groups", a.stats.Groups),
		slog.Int("keys", a.stats.Keys),
		slog.Int("rows", a.stats.Rows),
		slog.Int("associated", a.stats.Associated),
	)
	return nil
}

// associate attaches rec, fetched for group g, to every owner reachable
// through e and returns how many slots received it.
func (a *Association) associate(rec *record.Record, g *batch.Group, e *graph.Edge) int {
	if !g.Routes(e) {
		return 0
	}
	n := 0
	for _, owner := range a.findOwners(e, rec) {
		slot := owner.Association(e.Name)
		if e.Collection {
			// Records reached through two equivalent edges are appended twice.
			slot.Append(rec)
			n++
			continue
		}
		if slot.SetIfEmpty(rec) {
			n++
		}
	}
	return n
}

// findOwners resolves the owner records of rec for edge e. Through edges
// first resolve the intermediate records, then recurse into the hop.
func (a *Association) findOwners(e *graph.Edge, rec *record.Record) []*record.Record {
	direct := a.lookup(e, rec)
	switch e.Kind() {
	case graph.ThroughEdge:
		var owners []*record.Record
		for _, mid := range direct {
			owners = append(owners, a.findOwners(e.Through, mid)...)
		}
		return owners
	default:
		return direct
	}
}

func (a *Association) lookup(e *graph.Edge, rec *record.Record) []*record.Record {
	value, ok := rec.Get(e.PrimaryKey)
	if !ok || value == nil {
		return nil
	}
	positions := a.index.Get(e.JoinEntity, e.JoinKey, value)
	if len(positions) == 0 {
		return nil
	}
	owners := make([]*record.Record, 0, len(positions))
	for _, pos := range positions {
		if owner := a.store.At(e.JoinEntity, pos); owner != nil {
			owners = append(owners, owner)
		}
	}
	return owners
}

func (a *Association) markAllLoaded() {
	for e := range a.vertex.Edges() {
		if e.SkipLoading {
			continue
		}
		for _, owner := range a.store.Records(e.OwnerEntity()) {
			slot := owner.Association(e.Name)
			if !slot.Loaded() {
				slot.MarkLoaded()
			}
		}
	}
}
