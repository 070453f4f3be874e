// Package dbconn opens the database handle used by a preload run.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"fastpreload/internal/config"
	"fastpreload/internal/logging"
	"fastpreload/internal/sqlutil"

	// Drivers register themselves with database/sql.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Conn is an open database handle plus the instrumentation registered for it.
type Conn struct {
	DB      *sql.DB
	Dialect sqlutil.Dialect

	statsReg interface{ Unregister() error }
}

// Close unregisters pool metrics and closes the handle.
func (c *Conn) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	if c.statsReg != nil {
		_ = c.statsReg.Unregister()
	}
	return c.DB.Close()
}

// Open connects to the configured database, applies pool limits and waits
// until it answers a ping. With metrics or tracing enabled the handle is
// wrapped by otelsql.
func Open(ctx context.Context, db config.DatabaseConfig, obs config.ObservabilityConfig, logger *logging.Logger) (*Conn, error) {
	dialect, err := sqlutil.ParseDialect(db.DriverName())
	if err != nil {
		return nil, err
	}

	// Register custom TLS configuration if needed (for verify-ca/verify-full modes)
	if err := db.RegisterTLS(); err != nil {
		return nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	conn := &Conn{Dialect: dialect}
	driver := db.DriverName()
	dsn := db.DSN()

	if obs.MetricsEnabled || obs.TracingEnabled {
		attrs := systemAttributes(db)
		opts := []otelsql.Option{
			otelsql.WithAttributes(attrs...),
		}

		if obs.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
				DisableErrSkip: true,
			}))
		}

		if obs.SQLCommenterEnabled && obs.TracingEnabled {
			opts = append(opts, otelsql.WithSQLCommenter(true))
		} else if obs.SQLCommenterEnabled && !obs.TracingEnabled {
			logger.Debug("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
		}

		conn.DB, err = otelsql.Open(driver, dsn, opts...)
		if err != nil {
			return nil, err
		}

		if obs.MetricsEnabled {
			conn.statsReg, err = otelsql.RegisterDBStatsMetrics(conn.DB, otelsql.WithAttributes(attrs...))
			if err != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			}
		}

		logger.Debug("database instrumentation enabled",
			slog.Bool("metrics", obs.MetricsEnabled),
			slog.Bool("tracing", obs.TracingEnabled),
			slog.Bool("sqlcommenter", obs.SQLCommenterEnabled && obs.TracingEnabled),
		)
	} else {
		conn.DB, err = sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
	}

	if err := configure(ctx, conn.DB, db, logger); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func configure(ctx context.Context, sqlDB *sql.DB, db config.DatabaseConfig, logger *logging.Logger) error {
	if db.Pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(db.Pool.MaxOpen)
	}
	sqlDB.SetMaxIdleConns(db.Pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(db.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, sqlDB, db.ConnectionTimeout, db.ConnectionRetryInterval, logger); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("driver", db.DriverName()),
		slog.String("database", db.DatabaseName()),
		slog.Bool("dsn_present", db.ConnectionString != ""),
		slog.Int("pool_max_open", db.Pool.MaxOpen),
		slog.Int("pool_max_idle", db.Pool.MaxIdle),
	)
	return nil
}

// waitForDatabase pings until the database answers or timeout passes.
// A zero timeout tries once.
func waitForDatabase(ctx context.Context, db *sql.DB, timeout, interval time.Duration, logger *logging.Logger) error {
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func systemAttributes(db config.DatabaseConfig) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	switch db.DriverName() {
	case config.DriverPostgres:
		attrs = append(attrs, semconv.DBSystemPostgreSQL)
	case config.DriverSQLite:
		attrs = append(attrs, semconv.DBSystemSqlite)
	default:
		attrs = append(attrs, semconv.DBSystemMySQL)
	}
	if name := db.DatabaseName(); name != "" {
		attrs = append(attrs, semconv.DBNamespace(name))
	}
	return attrs
}
