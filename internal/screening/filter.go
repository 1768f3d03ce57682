package screening

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/stockfusion/internal/contracts"
)

var (
	// ErrEmptySpec is returned for a filter request without predicates
	ErrEmptySpec = errors.New("filter specification has no predicates")

	// ErrInvalidOperator is returned for an operator outside the vocabulary or not valid for the field type
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidOperand is returned when a predicate value does not fit its operator
	ErrInvalidOperand = errors.New("invalid operand")

	// ErrInvalidSpec wraps struct-level validation failures
	ErrInvalidSpec = errors.New("invalid filter specification")
)

// Predicate is one (field, operator, value) triple as sent by callers
type Predicate struct {
	Field    string      `json:"field" yaml:"field" validate:"required"`
	Operator string      `json:"operator" yaml:"operator" validate:"required"`
	Value    interface{} `json:"value" yaml:"value"`
}

// FilterSpec is a complete screening request
type FilterSpec struct {
	Filters   []Predicate `json:"filters" validate:"dive"`
	Logic     string      `json:"logic,omitempty" validate:"omitempty,oneof=AND OR and or"`
	SortBy    string      `json:"sort_by,omitempty"`
	SortOrder string      `json:"sort_order,omitempty" validate:"omitempty,oneof=asc desc ASC DESC"`
	Limit     int         `json:"limit,omitempty" validate:"gte=0"`
}

// compiled is a FilterSpec resolved against storage columns
type compiled struct {
	conditions []contracts.Condition
	logic      contracts.Logic
	sortColumn string
	sortDesc   bool
}

func compile(v *validator.Validate, spec FilterSpec) (*compiled, error) {
	if len(spec.Filters) == 0 {
		return nil, ErrEmptySpec
	}
	if err := v.Struct(spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	out := &compiled{
		logic:    contracts.LogicAnd,
		sortDesc: true,
	}
	if strings.EqualFold(spec.Logic, string(contracts.LogicOr)) {
		out.logic = contracts.LogicOr
	}

	for i, p := range spec.Filters {
		cond, err := toCondition(p)
		if err != nil {
			return nil, fmt.Errorf("filter %d (%s): %w", i, p.Field, err)
		}
		out.conditions = append(out.conditions, cond)
	}

	if spec.SortBy != "" {
		col, err := ResolveField(spec.SortBy)
		if err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		out.sortColumn = col
		out.sortDesc = !strings.EqualFold(spec.SortOrder, "asc")
	}

	return out, nil
}

// toCondition resolves the field and types the operand
func toCondition(p Predicate) (contracts.Condition, error) {
	col, err := ResolveField(p.Field)
	if err != nil {
		return contracts.Condition{}, err
	}
	if p.Value == nil {
		return contracts.Condition{}, fmt.Errorf("%w: value is required", ErrInvalidOperand)
	}

	op := contracts.Operator(strings.ToLower(p.Operator))
	cond := contracts.Condition{Column: col, Op: op, IsText: contracts.IsTextColumn(col)}

	if cond.IsText {
		return textCondition(cond, p.Value)
	}
	return numericCondition(cond, p.Value)
}

func textCondition(cond contracts.Condition, value interface{}) (contracts.Condition, error) {
	switch cond.Op {
	case contracts.OpEQ, contracts.OpNE, contracts.OpContains:
		s, ok := value.(string)
		if !ok {
			return cond, fmt.Errorf("%w: %s expects a string", ErrInvalidOperand, cond.Op)
		}
		cond.Text = s
	case contracts.OpIn, contracts.OpNotIn:
		items, err := toList(value)
		if err != nil {
			return cond, err
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return cond, fmt.Errorf("%w: %s expects a list of strings", ErrInvalidOperand, cond.Op)
			}
			cond.Texts = append(cond.Texts, s)
		}
	default:
		return cond, fmt.Errorf("%w: %q on text field", ErrInvalidOperator, cond.Op)
	}
	return cond, nil
}

func numericCondition(cond contracts.Condition, value interface{}) (contracts.Condition, error) {
	switch cond.Op {
	case contracts.OpGT, contracts.OpGTE, contracts.OpLT, contracts.OpLTE, contracts.OpEQ, contracts.OpNE:
		n, err := toNumber(value)
		if err != nil {
			return cond, err
		}
		cond.Num = n
	case contracts.OpBetween:
		items, err := toList(value)
		if err != nil {
			return cond, err
		}
		if len(items) != 2 {
			return cond, fmt.Errorf("%w: between expects exactly 2 values, got %d", ErrInvalidOperand, len(items))
		}
		lo, err := toNumber(items[0])
		if err != nil {
			return cond, err
		}
		hi, err := toNumber(items[1])
		if err != nil {
			return cond, err
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		cond.Num, cond.Num2 = lo, hi
	case contracts.OpIn, contracts.OpNotIn:
		items, err := toList(value)
		if err != nil {
			return cond, err
		}
		for _, item := range items {
			n, err := toNumber(item)
			if err != nil {
				return cond, err
			}
			cond.Nums = append(cond.Nums, n)
		}
	case contracts.OpContains:
		return cond, fmt.Errorf("%w: contains on numeric field", ErrInvalidOperator)
	default:
		return cond, fmt.Errorf("%w: %q", ErrInvalidOperator, cond.Op)
	}
	return cond, nil
}

func toList(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty list", ErrInvalidOperand)
		}
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return toList(out)
	case []float64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return toList(out)
	}
	return nil, fmt.Errorf("%w: expected a list, got %T", ErrInvalidOperand, value)
}

func toNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidOperand, err)
		}
		return n, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidOperand, v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: expected a number, got %T", ErrInvalidOperand, value)
}
