package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PreloadMetrics holds custom metrics for preload passes. All methods are
// safe to call on a nil receiver.
type PreloadMetrics struct {
	vertexDuration metric.Float64Histogram
	vertexCounter  metric.Int64Counter
	errorCounter   metric.Int64Counter
	fetchCounter   metric.Int64Counter
	fetchedRows    metric.Int64Histogram
	associated     metric.Int64Counter
	batchKeys      metric.Int64Histogram
	skipped        metric.Int64Counter
}

// InitPreloadMetrics creates the preload instruments on the global meter.
func InitPreloadMetrics() (*PreloadMetrics, error) {
	meter := otel.Meter("fastpreload")

	vertexDuration, err := meter.Float64Histogram(
		"preload.vertex.duration",
		metric.WithDescription("Duration of vertex loads in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex duration histogram: %w", err)
	}

	vertexCounter, err := meter.Int64Counter(
		"preload.vertex.loads",
		metric.WithDescription("Total number of vertex loads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex load counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"preload.vertex.errors",
		metric.WithDescription("Total number of failed vertex loads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex error counter: %w", err)
	}

	fetchCounter, err := meter.Int64Counter(
		"preload.fetches",
		metric.WithDescription("Number of combined fetch round trips"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch counter: %w", err)
	}

	fetchedRows, err := meter.Int64Histogram(
		"preload.fetch.rows",
		metric.WithDescription("Number of rows returned by a combined fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetched rows histogram: %w", err)
	}

	associated, err := meter.Int64Counter(
		"preload.associations",
		metric.WithDescription("Number of records attached to owner slots"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create associations counter: %w", err)
	}

	batchKeys, err := meter.Int64Histogram(
		"preload.batch.keys",
		metric.WithDescription("Number of foreign key values in a combined fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch keys histogram: %w", err)
	}

	skipped, err := meter.Int64Counter(
		"preload.fetch.skipped",
		metric.WithDescription("Number of vertex loads that needed no fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skipped counter: %w", err)
	}

	return &PreloadMetrics{
		vertexDuration: vertexDuration,
		vertexCounter:  vertexCounter,
		errorCounter:   errorCounter,
		fetchCounter:   fetchCounter,
		fetchedRows:    fetchedRows,
		associated:     associated,
		batchKeys:      batchKeys,
		skipped:        skipped,
	}, nil
}

// InitMetrics initializes the preload metrics and logs the outcome.
func InitMetrics(logger *slog.Logger) (*PreloadMetrics, error) {
	metrics, err := InitPreloadMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize preload metrics: %w", err)
	}

	logger.Info("preload metrics initialized")
	return metrics, nil
}

// RecordVertexLoad records a finished vertex load and its outcome.
func (m *PreloadMetrics) RecordVertexLoad(ctx context.Context, entity string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.Bool("has_errors", err != nil),
	)
	m.vertexDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.vertexCounter.Add(ctx, 1, attrs)
	if err != nil {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
	}
}

// RecordFetch records one completed round trip.
func (m *PreloadMetrics) RecordFetch(ctx context.Context, entity string, rows, associated int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("entity", entity))
	m.fetchCounter.Add(ctx, 1, attrs)
	m.fetchedRows.Record(ctx, int64(rows), attrs)
	if associated > 0 {
		m.associated.Add(ctx, int64(associated), attrs)
	}
}

func (m *PreloadMetrics) RecordBatchKeys(ctx context.Context, entity string, keys int) {
	if m == nil {
		return
	}
	m.batchKeys.Record(ctx, int64(keys), metric.WithAttributes(attribute.String("entity", entity)))
}

func (m *PreloadMetrics) RecordSkipped(ctx context.Context, entity, reason string) {
	if m == nil {
		return
	}
	m.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("reason", reason),
	))
}
