package preloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fastpreload/internal/graph"
	"fastpreload/internal/index"
	"fastpreload/internal/logging"
	"fastpreload/internal/observability"
	"fastpreload/internal/record"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type options struct {
	metrics *observability.PreloadMetrics
}

// Option configures a Preloader or Association.
type Option func(*options)

// WithMetrics records load metrics. A nil value disables them.
func WithMetrics(m *observability.PreloadMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Preloader runs load passes over an association graph.
type Preloader struct {
	fetcher Fetcher
	opts    []Option
}

// New creates a Preloader that fetches through fetcher.
func New(fetcher Fetcher, opts ...Option) *Preloader {
	return &Preloader{fetcher: fetcher, opts: opts}
}

// Report describes a finished pass.
type Report struct {
	PassID   string
	Vertices []Stats
	Duration time.Duration
}

// Fetches counts the round trips the pass made.
func (r *Report) Fetches() int {
	n := 0
	for _, s := range r.Vertices {
		if s.Fetched {
			n++
		}
	}
	return n
}

// Run executes one pass: each vertex of g is loaded in graph order against
// store, sharing one index. The first error aborts the pass; the returned
// report then covers the vertices attempted so far.
func (p *Preloader) Run(ctx context.Context, g *graph.Graph, store *record.Store) (*Report, error) {
	report := &Report{PassID: uuid.NewString()}
	start := time.Now()

	ctx, span := startPreloadSpan(ctx, "preload.pass", attribute.String("preload.pass_id", report.PassID))
	logger := logging.FromContext(ctx).WithFields(observability.PassLogFields(ctx, report.PassID)...)
	ctx = logging.WithLogger(ctx, logger)

	idx := index.New()
	var runErr error
	for _, v := range g.Vertices() {
		assoc := NewAssociation(v, store, idx, p.fetcher, p.opts...)
		err := assoc.Load(ctx)
		report.Vertices = append(report.Vertices, assoc.Stats())
		if err != nil {
			runErr = fmt.Errorf("load %s: %w", v.Entity, err)
			break
		}
	}
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("preload.vertices", len(report.Vertices)),
		attribute.Int("preload.fetches", report.Fetches()),
	)
	finishPreloadSpan(span, runErr)

	if runErr != nil {
		logger.Error("preload pass aborted", slog.String("error", runErr.Error()))
		return report, runErr
	}
	logger.Info("preload pass completed",
		slog.Int("vertices", len(report.Vertices)),
		slog.Int("fetches", report.Fetches()),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}
