// Package planner turns preload fetch requests into parameterized SQL.
// A vertex's groups become UNION ALL arms that each project the group's
// disambiguator as a literal tag column, so the whole vertex is fetched in
// one statement.
package planner

import (
	"errors"
	"strings"

	"fastpreload/internal/graph"
	"fastpreload/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// ErrEmptyRequest indicates a request with no groups or keys.
var ErrEmptyRequest = errors.New("empty fetch request")

// ScopeKeyAlias is the column carrying each row's scope disambiguator.
const ScopeKeyAlias = "__scope_key"

// GroupAlias is the column carrying the ordinal of the request group that
// produced a row. Rows are routed back to edges by this ordinal.
const GroupAlias = "__group"

// RowNumberAlias is the column carrying a row's position within its arm
// under the scope's ordering.
const RowNumberAlias = "__rn"

// DefaultMaxInClause caps the number of keys bound into one IN list.
const DefaultMaxInClause = 1000

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// applyFilter adds the scope's predicates to a select. Ordering is applied
// through the arm's row number instead.
func applyFilter(d sqlutil.Dialect, builder sq.SelectBuilder, scope graph.Scope) sq.SelectBuilder {
	if len(scope.Where) > 0 {
		eq := sq.Eq{}
		for col, value := range scope.Where {
			eq[d.QuoteIdentifier(col)] = value
		}
		builder = builder.Where(eq)
	}
	if expr := strings.TrimSpace(scope.Expr); expr != "" {
		builder = builder.Where(sq.Expr("("+expr+")", scope.Args...))
	}
	return builder
}

func orderByClauses(d sqlutil.Dialect, orders []graph.Order) []string {
	if len(orders) == 0 {
		return nil
	}
	clauses := make([]string, len(orders))
	for i, o := range orders {
		direction := "ASC"
		if o.Desc {
			direction = "DESC"
		}
		clauses[i] = d.QuoteIdentifier(o.Column) + " " + direction
	}
	return clauses
}

func columnList(d sqlutil.Dialect, table string, columns []string) []string {
	if len(columns) == 0 {
		return []string{d.QuoteIdentifier(table) + ".*"}
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.QuoteIdentifier(col)
	}
	return quoted
}

// finalize rewrites question-mark placeholders for the dialect.
func finalize(d sqlutil.Dialect, query string, args []interface{}) (SQLQuery, error) {
	rewritten, err := d.Placeholder().ReplacePlaceholders(query)
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: rewritten, Args: args}, nil
}
