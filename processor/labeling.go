package processor

import (
	"github.com/prcore/prcore/eventlog"
)

// labelCases derives the per-case OUTCOME and TREATMENT binary labels and,
// when a treatment group matches and a resource column is defined, the
// TREATMENT_RESOURCE value read off the first matching row. Labels are case
// level: every cleaned row of the case carries them.
func labelCases(cases []caseRows, def *eventlog.Definition) {
	outcomeConds := translate(def.Outcome, def)
	treatmentConds := translate(def.Treatment, def)
	typeOf := canonicalTypeOf(def)

	for _, c := range cases {
		if len(def.Outcome) > 0 {
			matched, _ := outcomeConds.EvaluateGroup(c.rows, typeOf)
			setAll(c.rows, eventlog.ColumnOutcome, boolLabel(matched))
		}
		if len(def.Treatment) > 0 {
			matched, idx := treatmentConds.EvaluateGroup(c.rows, typeOf)
			setAll(c.rows, eventlog.ColumnTreatment, boolLabel(matched))
			if def.Resource != "" {
				var resource any
				if matched {
					resource = c.rows[idx][eventlog.ColumnResource]
				}
				setAll(c.rows, eventlog.ColumnTreatmentResource, resource)
			}
		}
	}
}

func boolLabel(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func setAll(rows []eventlog.Row, col string, v any) {
	for _, r := range rows {
		r[col] = v
	}
}

// translate rewrites condition columns from raw log names into the canonical
// names the cleaned rows carry, so user-defined conditions written against
// the uploaded log evaluate against walked instances.
func translate(g eventlog.ConditionGroup, def *eventlog.Definition) eventlog.ConditionGroup {
	if len(g) == 0 {
		return nil
	}
	out := make(eventlog.ConditionGroup, len(g))
	for i, conj := range g {
		out[i] = make([]eventlog.Condition, len(conj))
		for j, c := range conj {
			c.Column = canonicalName(def, c.Column)
			out[i][j] = c
		}
	}
	return out
}

// canonicalName maps a raw column name to the cleaned row's key for it.
// A single timestamp column pairs into both START and END; conditions on it
// read the end side, which equals the start for unpaired instances.
func canonicalName(def *eventlog.Definition, col string) string {
	switch col {
	case def.CaseID:
		return eventlog.ColumnCaseID
	case def.Activity:
		return eventlog.ColumnActivity
	case def.Timestamp, def.EndTimestamp:
		return eventlog.ColumnEndTimestamp
	case def.StartTimestamp:
		return eventlog.ColumnStartTimestamp
	case def.Resource:
		return eventlog.ColumnResource
	case def.Duration:
		return eventlog.ColumnDuration
	case def.Cost:
		return eventlog.ColumnCost
	default:
		return col
	}
}

// canonicalTypeOf types the cleaned row keys: canonical roles plus the
// declared attribute columns, which keep their raw names until renaming.
func canonicalTypeOf(def *eventlog.Definition) func(string) (eventlog.ColumnType, bool) {
	return func(col string) (eventlog.ColumnType, bool) {
		switch col {
		case eventlog.ColumnCaseID, eventlog.ColumnActivity, eventlog.ColumnResource:
			return eventlog.TypeText, true
		case eventlog.ColumnStartTimestamp, eventlog.ColumnEndTimestamp:
			return eventlog.TypeDatetime, true
		case eventlog.ColumnDuration:
			return eventlog.TypeDuration, true
		case eventlog.ColumnCost:
			return eventlog.TypeNumber, true
		}
		ct, ok := def.Types[col]
		return ct, ok
	}
}
