// Package app owns the resources of one fastpreload run: telemetry
// providers, the database handle and the loaded graph definition.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"fastpreload/internal/config"
	"fastpreload/internal/dbconn"
	"fastpreload/internal/dbexec"
	"fastpreload/internal/graph"
	"fastpreload/internal/graphfile"
	"fastpreload/internal/logging"
	"fastpreload/internal/naming"
	"fastpreload/internal/observability"
	"fastpreload/internal/planner"
	"fastpreload/internal/preloader"
	"fastpreload/internal/record"
	"fastpreload/internal/render"
	"fastpreload/internal/sqlfetch"
)

// ShutdownTimeout bounds how long Shutdown may take to flush telemetry.
const ShutdownTimeout = 10 * time.Second

// App runs preload passes against one database.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        *observability.PreloadMetrics

	conn       *dbconn.Conn
	definition *graphfile.Definition

	resources resources

	stateMu      sync.Mutex
	initialized  bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Result summarizes a finished run.
type Result struct {
	Roots  int
	Report *preloader.Report
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Init loads the graph file, starts telemetry and connects to the
// database. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	loggerProvider := a.loggerProvider
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	var acquired resources
	success := false
	defer func() {
		if !success {
			_ = acquired.releaseAll(context.Background(), a.logger)
		}
	}()

	if loggerProvider != nil {
		acquired.acquire("logger provider", func(shutdownCtx context.Context) error {
			return loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	definition, err := graphfile.Load(a.cfg.Preload.GraphFile)
	if err != nil {
		return err
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		acquired.acquire("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		acquired.acquire("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	conn, err := dbconn.Open(ctx, a.cfg.Database, a.cfg.Observability, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	acquired.acquire("database", func(context.Context) error {
		return conn.Close()
	})

	a.stateMu.Lock()
	a.definition = definition
	a.meterProvider = meterProvider
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	a.conn = conn
	a.resources = acquired
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

// Run loads the root records, preloads the graph and writes the rendered
// result to w. Metrics are written to the configured textfile afterwards,
// whether or not the pass succeeded.
func (a *App) Run(ctx context.Context, w io.Writer) (*Result, error) {
	a.stateMu.Lock()
	initialized := a.initialized
	a.stateMu.Unlock()
	if !initialized {
		return nil, fmt.Errorf("app is not initialized")
	}

	if a.cfg.Preload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Preload.Timeout)
		defer cancel()
	}
	ctx = logging.WithLogger(ctx, a.logger)

	result, err := a.run(ctx, w)
	if path := a.cfg.Observability.MetricsTextfile; path != "" && a.meterProvider != nil {
		if werr := a.meterProvider.WriteTextfile(path); werr != nil {
			a.logger.Warn("failed to write metrics textfile", slog.String("error", werr.Error()))
		}
	}
	return result, err
}

func (a *App) run(ctx context.Context, w io.Writer) (*Result, error) {
	format, err := render.ParseFormat(a.cfg.Preload.Output.Format)
	if err != nil {
		return nil, err
	}
	rootEntity, rootQuery, err := a.rootQuery()
	if err != nil {
		return nil, err
	}

	executor := dbexec.NewStandardExecutor(a.conn.DB)
	store := record.NewStore()

	roots, err := sqlfetch.LoadRoots(ctx, executor, a.conn.Dialect, rootEntity, rootQuery, store)
	if err != nil {
		return nil, err
	}
	a.logger.Info("root records loaded",
		slog.String("entity", string(rootEntity)),
		slog.Int("count", roots),
	)

	fetcher := sqlfetch.New(executor, a.conn.Dialect, a.cfg.Preload.MaxInClause)
	report, err := preloader.New(fetcher, preloader.WithMetrics(a.metrics)).Run(ctx, a.definition.Graph, store)
	if err != nil {
		return &Result{Roots: roots, Report: report}, err
	}

	tree := render.Tree(a.definition.Graph, store.Records(rootEntity), a.cfg.Preload.Output.Depth)
	if err := render.Write(w, format, tree); err != nil {
		return &Result{Roots: roots, Report: report}, fmt.Errorf("write output: %w", err)
	}
	return &Result{Roots: roots, Report: report}, nil
}

// rootQuery resolves the root entity and its query. The configured entity
// wins over the graph file's root.
func (a *App) rootQuery() (graph.EntityType, planner.RootQuery, error) {
	root := a.definition.Root
	rootCfg := a.cfg.Preload.Root
	if rootCfg.Entity != "" && rootCfg.Entity != root.Entity {
		root = graphfile.RootSpec{Entity: rootCfg.Entity}
		if v, ok := a.definition.Graph.Vertex(graph.EntityType(rootCfg.Entity)); ok {
			root.Table = v.Table
			root.Columns = v.Columns
		} else {
			root.Table = naming.Default().TableName(rootCfg.Entity)
		}
	}
	if root.Entity == "" {
		return "", planner.RootQuery{}, fmt.Errorf("no root entity: set preload.root.entity or declare root in the graph file")
	}

	q := planner.RootQuery{
		Table:   root.Table,
		Columns: root.Columns,
		Where:   rootCfg.Where,
		Limit:   rootCfg.Limit,
	}
	for _, term := range rootCfg.OrderBy {
		o, err := graph.ParseOrder(term)
		if err != nil {
			return "", planner.RootQuery{}, fmt.Errorf("preload.root.order_by: %w", err)
		}
		q.OrderBy = append(q.OrderBy, o)
	}
	return graph.EntityType(root.Entity), q, nil
}
