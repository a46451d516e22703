// Package eventlog defines the tabular event-log model shared by the
// coordinator, the transformation engine and the plugins: tables with ordered
// columns, column definitions describing the semantics of a raw log, and the
// boolean condition trees used to derive outcome and treatment labels.
package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/prcore/prcore/errors"
)

// Row is one event of a log. Values are kept loosely typed the way they
// arrive from upload parsing; coercion happens in the transformation engine.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an event-log table with a stable column order.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Append adds a row. Keys not in Columns are added to the column order so the
// table stays self-describing.
func (t *Table) Append(r Row) {
	for k := range r {
		if !t.HasColumn(k) {
			t.Columns = append(t.Columns, k)
		}
	}
	t.Rows = append(t.Rows, r)
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.Rows)
}

// CaseGroup is the ordered set of rows belonging to one case.
type CaseGroup struct {
	CaseID string
	Rows   []Row
}

// GroupByCase splits the table into per-case groups, preserving the order in
// which case ids first appear. Rows missing the case column are skipped.
func (t *Table) GroupByCase(caseColumn string) ([]CaseGroup, error) {
	if !t.HasColumn(caseColumn) {
		return nil, errors.WrapInvalid(errors.ErrMissingColumn, "Table", "GroupByCase",
			fmt.Sprintf("group by %q", caseColumn))
	}

	index := make(map[string]int)
	var groups []CaseGroup
	for _, row := range t.Rows {
		id, ok := stringValue(row[caseColumn])
		if !ok {
			continue
		}
		at, seen := index[id]
		if !seen {
			index[id] = len(groups)
			groups = append(groups, CaseGroup{CaseID: id})
			at = len(groups) - 1
		}
		groups[at].Rows = append(groups[at].Rows, row)
	}
	return groups, nil
}

// RenameColumns returns a copy of the table with columns renamed per the
// mapping. Columns absent from the mapping are dropped; this is how the
// engine discards undeclared columns during namespace renaming.
func (t *Table) RenameColumns(mapping map[string]string) *Table {
	out := &Table{}
	for _, c := range t.Columns {
		if renamed, ok := mapping[c]; ok {
			out.Columns = append(out.Columns, renamed)
		}
	}
	for _, row := range t.Rows {
		nr := make(Row, len(mapping))
		for from, to := range mapping {
			if v, ok := row[from]; ok {
				nr[to] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Marshal serializes the table to JSON bytes for artifact exchange.
func (t *Table) Marshal() ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Table", "Marshal", "encode")
	}
	return raw, nil
}

// Unmarshal deserializes a table from JSON bytes.
func Unmarshal(raw []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.WrapInvalid(err, "Table", "Unmarshal", "decode")
	}
	return &t, nil
}

// stringValue renders a cell to its string form for grouping and comparison.
func stringValue(v any) (string, bool) {
	switch value := v.(type) {
	case nil:
		return "", false
	case string:
		return value, value != ""
	case fmt.Stringer:
		return value.String(), true
	case float64:
		// JSON numbers decode as float64; render integral values without a
		// trailing ".0" so case ids survive a round trip.
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value)), true
		}
		return fmt.Sprintf("%v", value), true
	default:
		return fmt.Sprintf("%v", value), true
	}
}
