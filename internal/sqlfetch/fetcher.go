// Package sqlfetch executes preload fetch requests against a SQL database.
package sqlfetch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"fastpreload/internal/batch"
	"fastpreload/internal/dbexec"
	"fastpreload/internal/graph"
	"fastpreload/internal/logging"
	"fastpreload/internal/planner"
	"fastpreload/internal/preloader"
	"fastpreload/internal/record"
	"fastpreload/internal/sqlutil"
)

// Fetcher plans a combined request as one UNION ALL statement and streams
// its rows back, splitting off the scope tag column.
type Fetcher struct {
	executor    dbexec.QueryExecutor
	dialect     sqlutil.Dialect
	maxInClause int
}

// New creates a Fetcher. maxInClause <= 0 uses planner.DefaultMaxInClause.
func New(executor dbexec.QueryExecutor, dialect sqlutil.Dialect, maxInClause int) *Fetcher {
	return &Fetcher{executor: executor, dialect: dialect, maxInClause: maxInClause}
}

var _ preloader.Fetcher = (*Fetcher)(nil)

// Fetch runs the request in a single round trip.
func (f *Fetcher) Fetch(ctx context.Context, req *batch.Request) (preloader.Rows, error) {
	query, err := planner.PlanBatch(f.dialect, req, f.maxInClause)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("executing batch fetch",
		slog.String("entity", string(req.Entity)),
		slog.Int("groups", len(req.Groups)),
		slog.String("sql", query.SQL),
	)

	rows, err := f.executor.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, dbexec.NormalizeError(err)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	tagPos, groupPos := -1, -1
	for i, col := range columns {
		switch col {
		case planner.ScopeKeyAlias:
			tagPos = i
		case planner.GroupAlias:
			groupPos = i
		}
	}
	if tagPos < 0 || groupPos < 0 {
		_ = rows.Close()
		return nil, fmt.Errorf("batch result for %s is missing the %s or %s column",
			req.Entity, planner.ScopeKeyAlias, planner.GroupAlias)
	}
	return &taggedRows{rows: rows, columns: columns, tagPos: tagPos, groupPos: groupPos}, nil
}

// taggedRows strips the routing columns off each row.
type taggedRows struct {
	rows     dbexec.Rows
	columns  []string
	tagPos   int
	groupPos int
	current  preloader.Row
	err      error
}

func (r *taggedRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	fields, err := scanRow(r.rows, r.columns)
	if err != nil {
		r.err = err
		return false
	}
	group, err := groupOrdinal(fields[planner.GroupAlias])
	if err != nil {
		r.err = err
		return false
	}
	tag := fmt.Sprint(fields[planner.ScopeKeyAlias])
	for _, col := range routingColumns {
		delete(fields, col)
	}
	r.current = preloader.Row{Tag: tag, Group: group, Fields: fields}
	return true
}

func (r *taggedRows) Row() preloader.Row {
	return r.current
}

func (r *taggedRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return dbexec.NormalizeError(r.rows.Err())
}

func (r *taggedRows) Close() error {
	return r.rows.Close()
}

var routingColumns = []string{planner.ScopeKeyAlias, planner.GroupAlias, planner.RowNumberAlias}

// groupOrdinal reads the group column. Text protocols hand integers back
// as strings.
func groupOrdinal(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", planner.GroupAlias, n, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("invalid %s value %v (%T)", planner.GroupAlias, v, v)
	}
}

// LoadRoots runs a root query and appends every row to the store as an
// entity record. It returns how many records were added.
func LoadRoots(ctx context.Context, executor dbexec.QueryExecutor, d sqlutil.Dialect, entity graph.EntityType, q planner.RootQuery, store *record.Store) (int, error) {
	query, err := planner.PlanRoots(d, q)
	if err != nil {
		return 0, err
	}
	rows, err := executor.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return 0, fmt.Errorf("load %s roots: %w", entity, dbexec.NormalizeError(err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	store.Ensure(entity)
	n := 0
	for rows.Next() {
		fields, err := scanRow(rows, columns)
		if err != nil {
			return n, err
		}
		store.Append(record.New(entity, fields))
		n++
	}
	return n, dbexec.NormalizeError(rows.Err())
}

func scanRow(rows dbexec.Rows, columns []string) (map[string]any, error) {
	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(columns))
	for i, col := range columns {
		fields[col] = convertValue(values[i])
	}
	return fields, nil
}

func convertValue(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}
