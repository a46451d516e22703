package eventlog

import (
	"fmt"
	"strings"

	"github.com/prcore/prcore/errors"
)

// Operator is a comparison operator in an atomic condition.
type Operator string

// Supported operators. Each declared column type admits a subset; Validate
// enforces the partition.
const (
	OpEqual          Operator = "equal"
	OpNotEqual       Operator = "not_equal"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_than_or_equal"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_than_or_equal"
	OpIsTrue         Operator = "is_true"
	OpIsFalse        Operator = "is_false"
	OpEarlierThan    Operator = "earlier_than"
	OpEarlierOrEqual Operator = "earlier_than_or_equal"
	OpLaterThan      Operator = "later_than"
	OpLaterOrEqual   Operator = "later_than_or_equal"
)

// operatorsByType partitions the operator sets by declared column type.
var operatorsByType = map[ColumnType][]Operator{
	TypeText:        {OpEqual, OpNotEqual, OpContains, OpNotContains},
	TypeNumber:      {OpEqual, OpNotEqual, OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual},
	TypeDuration:    {OpEqual, OpNotEqual, OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual},
	TypeBoolean:     {OpIsTrue, OpIsFalse},
	TypeDatetime:    {OpEqual, OpNotEqual, OpEarlierThan, OpEarlierOrEqual, OpLaterThan, OpLaterOrEqual},
	TypeCategorical: {OpEqual},
}

// Condition is an atomic (column, operator, threshold) test against one row.
type Condition struct {
	Column   string   `json:"column" yaml:"column"`
	Operator Operator `json:"operator" yaml:"operator"`
	// Value is the threshold, kept textual as defined by the operator; for
	// duration columns it is a "<n> <unit>" string parsed into seconds.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// ConditionGroup is an OR of ANDs: the outer slice is the disjunction, each
// inner slice a conjunction of atomic conditions.
type ConditionGroup [][]Condition

func (g ConditionGroup) validate(d *Definition) error {
	for _, conj := range g {
		if len(conj) == 0 {
			return errors.WrapInvalid(errors.ErrInvalidCondition, "ConditionGroup", "validate",
				"empty AND group")
		}
		for _, c := range conj {
			if err := c.validate(d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c Condition) validate(d *Definition) error {
	if c.Column == "" {
		return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "validate", "column required")
	}
	ct, ok := d.TypeOf(c.Column)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "validate",
			fmt.Sprintf("column %q has no declared type", c.Column))
	}
	for _, op := range operatorsByType[ct] {
		if op == c.Operator {
			if ct == TypeDuration && c.Value != "" {
				if _, err := ParseDurationThreshold(c.Value); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return errors.WrapInvalid(errors.ErrInvalidCondition, "Condition", "validate",
		fmt.Sprintf("operator %q not allowed on %s column %q", c.Operator, ct, c.Column))
}

// Matches evaluates the condition against one cell value of declared type ct.
// A nil cell never matches. Unparseable cells never match either: a malformed
// value in one row must not fail the whole labeling pass.
func (c Condition) Matches(cell any, ct ColumnType) bool {
	if cell == nil {
		return false
	}

	switch ct {
	case TypeText:
		s, ok := stringValue(cell)
		if !ok {
			return false
		}
		switch c.Operator {
		case OpEqual:
			return s == c.Value
		case OpNotEqual:
			return s != c.Value
		case OpContains:
			return strings.Contains(s, c.Value)
		case OpNotContains:
			return !strings.Contains(s, c.Value)
		}

	case TypeCategorical:
		s, ok := stringValue(cell)
		return ok && c.Operator == OpEqual && s == c.Value

	case TypeNumber, TypeDuration:
		v, ok := toFloat(cell)
		if !ok {
			return false
		}
		var threshold float64
		if ct == TypeDuration {
			secs, err := ParseDurationThreshold(c.Value)
			if err != nil {
				return false
			}
			threshold = secs
		} else {
			t, ok := parseFloat(c.Value)
			if !ok {
				return false
			}
			threshold = t
		}
		switch c.Operator {
		case OpEqual:
			return v == threshold
		case OpNotEqual:
			return v != threshold
		case OpLessThan:
			return v < threshold
		case OpLessOrEqual:
			return v <= threshold
		case OpGreaterThan:
			return v > threshold
		case OpGreaterOrEqual:
			return v >= threshold
		}

	case TypeBoolean:
		b, ok := toBool(cell)
		if !ok {
			return false
		}
		switch c.Operator {
		case OpIsTrue:
			return b
		case OpIsFalse:
			return !b
		}

	case TypeDatetime:
		cellTime, err := ParseTimestamp(cell)
		if err != nil {
			return false
		}
		threshold, err := ParseTimestamp(c.Value)
		if err != nil {
			return false
		}
		cellTime, threshold = reconcileZones(cellTime, threshold)
		switch c.Operator {
		case OpEqual:
			return cellTime.Equal(threshold)
		case OpNotEqual:
			return !cellTime.Equal(threshold)
		case OpEarlierThan:
			return cellTime.Before(threshold)
		case OpEarlierOrEqual:
			return !cellTime.After(threshold)
		case OpLaterThan:
			return cellTime.After(threshold)
		case OpLaterOrEqual:
			return !cellTime.Before(threshold)
		}
	}
	return false
}

// EvaluateGroup evaluates the OR-of-ANDs tree against a case's rows with the
// row-alignment invariant: an AND group is satisfied only when a single row
// satisfies every conjunct simultaneously. It returns whether any group
// matched and the index of the first matching row (-1 when none).
func (g ConditionGroup) EvaluateGroup(rows []Row, typeOf func(string) (ColumnType, bool)) (bool, int) {
	for _, conj := range g {
		for i, row := range rows {
			all := true
			for _, c := range conj {
				ct, ok := typeOf(c.Column)
				if !ok || !c.Matches(row[c.Column], ct) {
					all = false
					break
				}
			}
			if all {
				return true, i
			}
		}
	}
	return false, -1
}
