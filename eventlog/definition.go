package eventlog

import (
	"fmt"

	"github.com/prcore/prcore/errors"
)

// ColumnType is the declared type of a raw log column. It selects the
// operator set a condition on that column may use and the namespace prefix
// the column is renamed into.
type ColumnType string

// Declared column types.
const (
	TypeText        ColumnType = "text"
	TypeNumber      ColumnType = "number"
	TypeBoolean     ColumnType = "boolean"
	TypeDatetime    ColumnType = "datetime"
	TypeCategorical ColumnType = "categorical"
	TypeDuration    ColumnType = "duration"
)

// Canonical output column names produced by the transformation engine.
const (
	ColumnCaseID         = "CASE_ID"
	ColumnActivity       = "ACTIVITY"
	ColumnStartTimestamp = "START_TIMESTAMP"
	ColumnEndTimestamp   = "END_TIMESTAMP"
	ColumnResource       = "RESOURCE"
	ColumnDuration       = "DURATION"
	ColumnCost           = "COST"
	ColumnOutcome        = "OUTCOME"
	ColumnTreatment      = "TREATMENT"
	// ColumnTreatmentResource carries the resource value read off the first
	// row matching a treatment group, when a resource column is defined.
	ColumnTreatmentResource = "TREATMENT_RESOURCE"
)

// Namespace prefixes for surviving columns without a special role.
const (
	PrefixCategorical    = "CATEGORICAL_"
	PrefixCaseAttribute  = "CASE_ATTRIBUTE_"
	PrefixEventAttribute = "EVENT_ATTRIBUTE_"
)

// Transition lifecycle values recognized during start/complete pairing.
// Matching is case-insensitive.
const (
	TransitionStart    = "start"
	TransitionComplete = "complete"
	TransitionAbort    = "ate_abort"
)

// Definition describes the semantics of a raw event-log table: which column
// is the case id, which carries the activity name, how timestamps are laid
// out, and how outcome/treatment labels are derived.
type Definition struct {
	CaseID   string `json:"case_id" yaml:"case_id"`
	Activity string `json:"activity" yaml:"activity"`

	// Exactly one timestamp layout applies:
	// Timestamp alone, Timestamp+Transition, or StartTimestamp+EndTimestamp.
	Timestamp      string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Transition     string `json:"transition,omitempty" yaml:"transition,omitempty"`
	StartTimestamp string `json:"start_timestamp,omitempty" yaml:"start_timestamp,omitempty"`
	EndTimestamp   string `json:"end_timestamp,omitempty" yaml:"end_timestamp,omitempty"`

	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Cost     string `json:"cost,omitempty" yaml:"cost,omitempty"`

	// Types declares the type of every additional column that should survive
	// the transformation.
	Types map[string]ColumnType `json:"types,omitempty" yaml:"types,omitempty"`

	// CaseAttributes lists columns whose value is constant per case.
	CaseAttributes []string `json:"case_attributes,omitempty" yaml:"case_attributes,omitempty"`

	// Outcome and Treatment are OR-of-AND condition trees; nil means the
	// corresponding label is not derived.
	Outcome   ConditionGroup `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Treatment ConditionGroup `json:"treatment,omitempty" yaml:"treatment,omitempty"`
}

// TimestampLayout identifies which of the three timestamp layouts a
// definition uses.
type TimestampLayout int

const (
	// LayoutSingle: one timestamp per row, rows are complete activity
	// instances already.
	LayoutSingle TimestampLayout = iota
	// LayoutTransition: one timestamp plus a lifecycle transition column;
	// start/complete rows must be paired.
	LayoutTransition
	// LayoutStartEnd: explicit start and end timestamp columns per row.
	LayoutStartEnd
)

// Layout returns the timestamp layout, or an error when the definition is
// ambiguous or incomplete.
func (d *Definition) Layout() (TimestampLayout, error) {
	switch {
	case d.StartTimestamp != "" && d.EndTimestamp != "":
		if d.Timestamp != "" || d.Transition != "" {
			return 0, errors.WrapInvalid(errors.ErrInvalidDefinition, "Definition", "Layout",
				"mixing start/end timestamps with a single timestamp column")
		}
		return LayoutStartEnd, nil
	case d.Timestamp != "" && d.Transition != "":
		return LayoutTransition, nil
	case d.Timestamp != "":
		return LayoutSingle, nil
	default:
		return 0, errors.WrapInvalid(errors.ErrInvalidDefinition, "Definition", "Layout",
			"no timestamp columns declared")
	}
}

// Validate checks structural consistency: required columns, well-formed
// condition trees, and known declared types.
func (d *Definition) Validate() error {
	if d.CaseID == "" {
		return errors.WrapInvalid(errors.ErrInvalidDefinition, "Definition", "Validate", "case id column required")
	}
	if d.Activity == "" {
		return errors.WrapInvalid(errors.ErrInvalidDefinition, "Definition", "Validate", "activity column required")
	}
	if _, err := d.Layout(); err != nil {
		return err
	}
	for col, ct := range d.Types {
		switch ct {
		case TypeText, TypeNumber, TypeBoolean, TypeDatetime, TypeCategorical, TypeDuration:
		default:
			return errors.WrapInvalid(errors.ErrInvalidDefinition, "Definition", "Validate",
				fmt.Sprintf("column %q has unknown type %q", col, ct))
		}
	}
	if err := d.Outcome.validate(d); err != nil {
		return errors.Wrap(err, "Definition", "Validate", "outcome conditions")
	}
	if err := d.Treatment.validate(d); err != nil {
		return errors.Wrap(err, "Definition", "Validate", "treatment conditions")
	}
	return nil
}

// TypeOf returns the declared type of a column, considering the special
// roles (timestamps are datetime, duration/cost are numbers).
func (d *Definition) TypeOf(column string) (ColumnType, bool) {
	switch column {
	case "":
		return "", false
	case d.Timestamp, d.StartTimestamp, d.EndTimestamp:
		return TypeDatetime, true
	case d.Duration:
		return TypeDuration, true
	case d.Cost:
		return TypeNumber, true
	case d.CaseID, d.Activity, d.Transition, d.Resource:
		return TypeText, true
	}
	ct, ok := d.Types[column]
	return ct, ok
}

// IsCaseAttribute reports whether the column is declared case-level.
func (d *Definition) IsCaseAttribute(column string) bool {
	for _, c := range d.CaseAttributes {
		if c == column {
			return true
		}
	}
	return false
}
