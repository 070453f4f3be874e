package planner

import (
	"fmt"
	"strings"

	"fastpreload/internal/graph"
	"fastpreload/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// RootQuery describes how to load the root records of a pass.
type RootQuery struct {
	Table   string
	Columns []string
	Where   string
	Args    []interface{}
	OrderBy []graph.Order
	Limit   uint64
}

// PlanRoots builds the SQL that seeds the record store.
func PlanRoots(d sqlutil.Dialect, q RootQuery) (SQLQuery, error) {
	if strings.TrimSpace(q.Table) == "" {
		return SQLQuery{}, fmt.Errorf("root query requires a table")
	}
	builder := sq.Select(columnList(d, q.Table, q.Columns)...).
		From(d.QuoteIdentifier(q.Table))
	if where := strings.TrimSpace(q.Where); where != "" {
		builder = builder.Where(sq.Expr(where, q.Args...))
	}
	if clauses := orderByClauses(d, q.OrderBy); len(clauses) > 0 {
		builder = builder.OrderBy(clauses...)
	}
	if q.Limit > 0 {
		builder = builder.Limit(q.Limit)
	}

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return finalize(d, query, args)
}
