package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fastpreload/internal/logging"
)

// resource is something Init acquired and Shutdown must release.
type resource struct {
	name    string
	release func(context.Context) error
}

// resources are released newest first, so the database closes before the
// telemetry providers that observe it flush.
type resources []resource

func (r *resources) acquire(name string, release func(context.Context) error) {
	*r = append(*r, resource{name: name, release: release})
}

// releaseAll releases every resource even when some fail, and joins the
// failures.
func (r resources) releaseAll(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(r) - 1; i >= 0; i-- {
		res := r[i]
		start := time.Now()
		err := res.release(ctx)
		if logger != nil {
			attrs := []any{
				slog.String("component", res.name),
				slog.Duration("took", time.Since(start)),
			}
			if err != nil {
				logger.Warn("release failed", append(attrs, slog.String("error", err.Error()))...)
			} else {
				logger.Debug("released", attrs...)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", res.name, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown releases everything Init acquired. Only the first call does any
// work; later calls return its result. Without a deadline on ctx the
// release is bounded by ShutdownTimeout.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, ShutdownTimeout)
			defer cancel()
		}

		a.stateMu.Lock()
		acquired := a.resources
		a.resources = nil
		a.initialized = false
		a.stateMu.Unlock()

		a.shutdownErr = acquired.releaseAll(ctx, a.logger)
	})

	return a.shutdownErr
}
