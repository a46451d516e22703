package processor

import (
	"sort"
	"strings"

	"github.com/prcore/prcore/eventlog"
)

// renameMapping builds the final namespace renaming. Canonical role columns
// keep their names; every declared attribute column is remapped by type:
// CASE_ATTRIBUTE_<TYPE>_ when declared case level, CATEGORICAL_ for
// categorical event attributes, EVENT_ATTRIBUTE_<TYPE>_ otherwise. Columns
// absent from the mapping are dropped during the rename, which is how
// undeclared raw columns disappear from the output.
func renameMapping(def *eventlog.Definition) map[string]string {
	m := map[string]string{
		eventlog.ColumnCaseID:         eventlog.ColumnCaseID,
		eventlog.ColumnActivity:       eventlog.ColumnActivity,
		eventlog.ColumnStartTimestamp: eventlog.ColumnStartTimestamp,
		eventlog.ColumnEndTimestamp:   eventlog.ColumnEndTimestamp,
		eventlog.ColumnDuration:       eventlog.ColumnDuration,
	}
	if def.Resource != "" {
		m[eventlog.ColumnResource] = eventlog.ColumnResource
	}
	if def.Cost != "" {
		m[eventlog.ColumnCost] = eventlog.ColumnCost
	}
	if len(def.Outcome) > 0 {
		m[eventlog.ColumnOutcome] = eventlog.ColumnOutcome
	}
	if len(def.Treatment) > 0 {
		m[eventlog.ColumnTreatment] = eventlog.ColumnTreatment
		if def.Resource != "" {
			m[eventlog.ColumnTreatmentResource] = eventlog.ColumnTreatmentResource
		}
	}
	for col, ct := range def.Types {
		m[col] = namespaceName(def, col, ct)
	}
	return m
}

func namespaceName(def *eventlog.Definition, col string, ct eventlog.ColumnType) string {
	token := strings.ToUpper(string(ct))
	switch {
	case def.IsCaseAttribute(col):
		return eventlog.PrefixCaseAttribute + token + "_" + col
	case ct == eventlog.TypeCategorical:
		return eventlog.PrefixCategorical + col
	default:
		return eventlog.PrefixEventAttribute + token + "_" + col
	}
}

// sortedTypeColumns returns the declared attribute columns in a stable order.
func sortedTypeColumns(def *eventlog.Definition) []string {
	cols := make([]string, 0, len(def.Types))
	for col := range def.Types {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
