package planner

import (
	"fmt"
	"strings"

	"fastpreload/internal/batch"
	"fastpreload/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// PlanBatch builds one statement for a combined request. Each group becomes
// one or more arms (key sets larger than maxIn are split) joined with
// UNION ALL. Every arm projects the group's disambiguator, the group ordinal
// and a row number under the scope's ordering; the union is ordered by
// ordinal then row number so per-owner order survives the compound select.
func PlanBatch(d sqlutil.Dialect, req *batch.Request, maxIn int) (SQLQuery, error) {
	if req == nil || len(req.Groups) == 0 {
		return SQLQuery{}, ErrEmptyRequest
	}
	if maxIn <= 0 {
		maxIn = DefaultMaxInClause
	}

	var (
		arms []string
		args []interface{}
	)
	for ordinal, g := range req.Groups {
		if len(g.Keys) == 0 {
			continue
		}
		for _, chunk := range chunkValues(g.Keys, maxIn) {
			armSQL, armArgs, err := planArm(d, req, g, ordinal, chunk)
			if err != nil {
				return SQLQuery{}, fmt.Errorf("plan %s scope %q: %w", req.Entity, g.Disambiguator, err)
			}
			arms = append(arms, armSQL)
			args = append(args, armArgs...)
		}
	}
	if len(arms) == 0 {
		return SQLQuery{}, ErrEmptyRequest
	}
	query := fmt.Sprintf("SELECT * FROM (%s) AS __batch ORDER BY %s, %s",
		strings.Join(arms, " UNION ALL "), GroupAlias, RowNumberAlias)
	return finalize(d, query, args)
}

func planArm(d sqlutil.Dialect, req *batch.Request, g *batch.Group, ordinal int, keys []interface{}) (string, []interface{}, error) {
	rowNumber := "0"
	if clauses := orderByClauses(d, g.Scope.OrderBy); len(clauses) > 0 {
		rowNumber = fmt.Sprintf("ROW_NUMBER() OVER (ORDER BY %s)", strings.Join(clauses, ", "))
	}
	builder := sq.Select(columnList(d, req.Table, req.Columns)...).
		Column(fmt.Sprintf("%s AS %s", sqlutil.QuoteString(g.Disambiguator), ScopeKeyAlias)).
		Column(fmt.Sprintf("%d AS %s", ordinal, GroupAlias)).
		Column(fmt.Sprintf("%s AS %s", rowNumber, RowNumberAlias)).
		From(d.QuoteIdentifier(req.Table)).
		Where(sq.Eq{d.QuoteIdentifier(g.PrimaryKey): keys})
	builder = applyFilter(d, builder, g.Scope)

	return builder.PlaceholderFormat(sq.Question).ToSql()
}

func chunkValues(values []interface{}, max int) [][]interface{} {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]interface{}{values}
	}
	chunks := make([][]interface{}, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := start + max
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
