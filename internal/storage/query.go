package storage

import (
	"fmt"
	"strings"

	"github.com/wonny/stockfusion/internal/contracts"
)

// whereBuilder renders conditions as parameterized SQL.
// Column names are whitelisted against the stocks schema; values always go through $n.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) arg(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

// buildWhere renders "quality >= floor AND (c1 <logic> c2 ...)"
func buildWhere(q contracts.ScreenQuery) (string, []interface{}, error) {
	w := &whereBuilder{}
	base := fmt.Sprintf("%s >= %s", contracts.ColQualityScore, w.arg(q.MinQuality))

	for _, c := range q.Conditions {
		clause, err := w.condition(c)
		if err != nil {
			return "", nil, err
		}
		w.clauses = append(w.clauses, clause)
	}

	if len(w.clauses) == 0 {
		return base, w.args, nil
	}

	joiner := " AND "
	if q.Logic == contracts.LogicOr {
		joiner = " OR "
	}
	return fmt.Sprintf("%s AND (%s)", base, strings.Join(w.clauses, joiner)), w.args, nil
}

func (w *whereBuilder) condition(c contracts.Condition) (string, error) {
	if !contracts.IsKnownColumn(c.Column) {
		return "", fmt.Errorf("unknown column %q", c.Column)
	}
	col := c.Column

	if c.IsText {
		if !contracts.IsTextColumn(col) {
			return "", fmt.Errorf("column %q is not text", col)
		}
		switch c.Op {
		case contracts.OpEQ:
			return fmt.Sprintf("%s = %s", col, w.arg(c.Text)), nil
		case contracts.OpNE:
			return fmt.Sprintf("%s <> %s", col, w.arg(c.Text)), nil
		case contracts.OpContains:
			return fmt.Sprintf("strpos(lower(%s), lower(%s)) > 0", col, w.arg(c.Text)), nil
		case contracts.OpIn:
			return fmt.Sprintf("%s = ANY(%s)", col, w.arg(c.Texts)), nil
		case contracts.OpNotIn:
			return fmt.Sprintf("(%s IS NOT NULL AND NOT (%s = ANY(%s)))", col, col, w.arg(c.Texts)), nil
		}
		return "", fmt.Errorf("operator %q not supported on text column %q", c.Op, col)
	}

	if !contracts.IsNumericColumn(col) {
		return "", fmt.Errorf("column %q is not numeric", col)
	}
	switch c.Op {
	case contracts.OpGT:
		return fmt.Sprintf("%s > %s", col, w.arg(c.Num)), nil
	case contracts.OpGTE:
		return fmt.Sprintf("%s >= %s", col, w.arg(c.Num)), nil
	case contracts.OpLT:
		return fmt.Sprintf("%s < %s", col, w.arg(c.Num)), nil
	case contracts.OpLTE:
		return fmt.Sprintf("%s <= %s", col, w.arg(c.Num)), nil
	case contracts.OpEQ:
		return fmt.Sprintf("%s = %s", col, w.arg(c.Num)), nil
	case contracts.OpNE:
		return fmt.Sprintf("%s <> %s", col, w.arg(c.Num)), nil
	case contracts.OpBetween:
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, w.arg(c.Num), w.arg(c.Num2)), nil
	case contracts.OpIn:
		return fmt.Sprintf("%s = ANY(%s)", col, w.arg(c.Nums)), nil
	case contracts.OpNotIn:
		return fmt.Sprintf("(%s IS NOT NULL AND NOT (%s = ANY(%s)))", col, col, w.arg(c.Nums)), nil
	}
	return "", fmt.Errorf("operator %q not supported on numeric column %q", c.Op, col)
}

// orderBy renders a whitelisted ORDER BY, NULLs last in both directions
func orderBy(column string, desc bool) (string, error) {
	if column == "" {
		column = contracts.ColMarketCap
	}
	if !contracts.IsKnownColumn(column) {
		return "", fmt.Errorf("unknown sort column %q", column)
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, %s ASC", column, dir, contracts.ColSymbol), nil
}

// setClause renders "col = $n, ..." for the metric columns of m in a stable order
func setClause(m contracts.Metrics, startArg int) (string, []interface{}) {
	cols := make([]string, 0, len(m))
	for _, col := range contracts.MetricColumns {
		if _, ok := m[col]; ok {
			cols = append(cols, col)
		}
	}

	parts := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for i, col := range cols {
		parts = append(parts, fmt.Sprintf("%s = $%d", col, startArg+i))
		args = append(args, m[col])
	}
	return strings.Join(parts, ", "), args
}
