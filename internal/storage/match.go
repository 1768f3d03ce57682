package storage

import (
	"sort"
	"strings"

	"github.com/wonny/stockfusion/internal/contracts"
)

// Match evaluates one condition against a record. A NULL column never matches.
func Match(rec *contracts.StockRecord, c contracts.Condition) bool {
	if c.IsText {
		v, ok := rec.Text(c.Column)
		if !ok {
			return false
		}
		return matchText(v, c)
	}

	v, ok := rec.Number(c.Column)
	if !ok {
		return false
	}
	return matchNumber(v, c)
}

func matchNumber(v float64, c contracts.Condition) bool {
	switch c.Op {
	case contracts.OpGT:
		return v > c.Num
	case contracts.OpGTE:
		return v >= c.Num
	case contracts.OpLT:
		return v < c.Num
	case contracts.OpLTE:
		return v <= c.Num
	case contracts.OpEQ:
		return v == c.Num
	case contracts.OpNE:
		return v != c.Num
	case contracts.OpBetween:
		return v >= c.Num && v <= c.Num2
	case contracts.OpIn:
		for _, n := range c.Nums {
			if v == n {
				return true
			}
		}
		return false
	case contracts.OpNotIn:
		for _, n := range c.Nums {
			if v == n {
				return false
			}
		}
		return true
	}
	return false
}

func matchText(v string, c contracts.Condition) bool {
	switch c.Op {
	case contracts.OpEQ:
		return v == c.Text
	case contracts.OpNE:
		return v != c.Text
	case contracts.OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Text))
	case contracts.OpIn:
		for _, t := range c.Texts {
			if v == t {
				return true
			}
		}
		return false
	case contracts.OpNotIn:
		for _, t := range c.Texts {
			if v == t {
				return false
			}
		}
		return true
	}
	return false
}

// MatchAll combines conditions with logic. No conditions match everything.
func MatchAll(rec *contracts.StockRecord, conds []contracts.Condition, logic contracts.Logic) bool {
	if len(conds) == 0 {
		return true
	}
	if logic == contracts.LogicOr {
		for _, c := range conds {
			if Match(rec, c) {
				return true
			}
		}
		return false
	}
	for _, c := range conds {
		if !Match(rec, c) {
			return false
		}
	}
	return true
}

// SortRecords orders records by column, NULLs last in both directions, symbol as tiebreak
func SortRecords(records []*contracts.StockRecord, column string, desc bool) {
	text := contracts.IsTextColumn(column)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]

		if text {
			av, aok := a.Text(column)
			bv, bok := b.Text(column)
			if aok != bok {
				return aok
			}
			if av != bv {
				if desc {
					return av > bv
				}
				return av < bv
			}
			return a.Symbol < b.Symbol
		}

		av, aok := a.Number(column)
		bv, bok := b.Number(column)
		if aok != bok {
			return aok
		}
		if aok && av != bv {
			if desc {
				return av > bv
			}
			return av < bv
		}
		return a.Symbol < b.Symbol
	})
}
