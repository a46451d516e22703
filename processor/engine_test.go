package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcore/prcore/eventlog"
)

func transitionDefinition() *eventlog.Definition {
	return &eventlog.Definition{
		CaseID:     "case",
		Activity:   "activity",
		Timestamp:  "time",
		Transition: "transition",
	}
}

func rawRow(caseID, activity, transition, ts string) eventlog.Row {
	return eventlog.Row{
		"case":       caseID,
		"activity":   activity,
		"transition": transition,
		"time":       ts,
	}
}

func transform(t *testing.T, def *eventlog.Definition, rows ...eventlog.Row) *eventlog.Table {
	t.Helper()
	raw := eventlog.NewTable()
	for _, r := range rows {
		raw.Append(r)
	}
	out, err := NewEngine(1, nil).Transform(context.Background(), raw, def)
	require.NoError(t, err)
	return out
}

func rowTime(t *testing.T, row eventlog.Row, col string) time.Time {
	t.Helper()
	ts, err := eventlog.ParseTimestamp(row[col])
	require.NoError(t, err)
	return ts
}

func TestPairedStartComplete(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
		rawRow("c1", "A", "complete", "2024-05-01 09:30:00"),
	)

	require.Equal(t, 1, out.Len())
	row := out.Rows[0]
	assert.Equal(t, "A", row[eventlog.ColumnActivity])
	start := rowTime(t, row, eventlog.ColumnStartTimestamp)
	end := rowTime(t, row, eventlog.ColumnEndTimestamp)
	assert.Equal(t, 90*time.Minute, end.Sub(start))
	assert.Equal(t, 5400.0, row[eventlog.ColumnDuration])
}

func TestCompleteWithoutStart(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "complete", "2024-05-01 09:30:00"),
	)

	require.Equal(t, 1, out.Len())
	row := out.Rows[0]
	assert.Equal(t,
		rowTime(t, row, eventlog.ColumnStartTimestamp),
		rowTime(t, row, eventlog.ColumnEndTimestamp))
	assert.Equal(t, 0.0, row[eventlog.ColumnDuration])
}

func TestStartWithoutComplete(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
	)

	require.Equal(t, 1, out.Len())
	row := out.Rows[0]
	start := rowTime(t, row, eventlog.ColumnStartTimestamp)
	assert.Equal(t, start, rowTime(t, row, eventlog.ColumnEndTimestamp))
	assert.Equal(t, 0.0, row[eventlog.ColumnDuration])
}

func TestSecondStartOverwritesFirst(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
		rawRow("c1", "A", "start", "2024-05-01 08:30:00"),
		rawRow("c1", "A", "complete", "2024-05-01 09:00:00"),
	)

	// The second start replaces the first; one merged row, 30 minutes.
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 1800.0, out.Rows[0][eventlog.ColumnDuration])
}

func TestRecurringActivityPairedIndependently(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
		rawRow("c1", "A", "complete", "2024-05-01 08:10:00"),
		rawRow("c1", "A", "start", "2024-05-01 09:00:00"),
		rawRow("c1", "A", "complete", "2024-05-01 09:20:00"),
	)

	require.Equal(t, 2, out.Len())
	assert.Equal(t, 600.0, out.Rows[0][eventlog.ColumnDuration])
	assert.Equal(t, 1200.0, out.Rows[1][eventlog.ColumnDuration])
}

func TestInterleavedActivities(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
		rawRow("c1", "B", "start", "2024-05-01 08:05:00"),
		rawRow("c1", "A", "complete", "2024-05-01 08:30:00"),
		rawRow("c1", "B", "complete", "2024-05-01 08:50:00"),
	)

	require.Equal(t, 2, out.Len())
	assert.Equal(t, "A", out.Rows[0][eventlog.ColumnActivity])
	assert.Equal(t, 1800.0, out.Rows[0][eventlog.ColumnDuration])
	assert.Equal(t, "B", out.Rows[1][eventlog.ColumnActivity])
	assert.Equal(t, 2700.0, out.Rows[1][eventlog.ColumnDuration])
}

func TestAbortClosesInstance(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
		rawRow("c1", "A", "ate_abort", "2024-05-01 08:15:00"),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, 900.0, out.Rows[0][eventlog.ColumnDuration])
}

func TestUnsortedInputIsOrderedByTimestamp(t *testing.T) {
	out := transform(t, transitionDefinition(),
		rawRow("c1", "A", "complete", "2024-05-01 09:30:00"),
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, 5400.0, out.Rows[0][eventlog.ColumnDuration])
}

func TestStartEndLayout(t *testing.T) {
	def := &eventlog.Definition{
		CaseID:         "case",
		Activity:       "activity",
		StartTimestamp: "began",
		EndTimestamp:   "ended",
	}
	out := transform(t, def, eventlog.Row{
		"case": "c1", "activity": "A",
		"began": "2024-05-01 08:00:00", "ended": "2024-05-01 08:20:00",
	})

	require.Equal(t, 1, out.Len())
	assert.Equal(t, 1200.0, out.Rows[0][eventlog.ColumnDuration])
}

func TestSingleTimestampLayout(t *testing.T) {
	def := &eventlog.Definition{
		CaseID:    "case",
		Activity:  "activity",
		Timestamp: "time",
	}
	out := transform(t, def, eventlog.Row{
		"case": "c1", "activity": "A", "time": "2024-05-01 08:00:00",
	})

	require.Equal(t, 1, out.Len())
	row := out.Rows[0]
	assert.Equal(t,
		rowTime(t, row, eventlog.ColumnStartTimestamp),
		rowTime(t, row, eventlog.ColumnEndTimestamp))
}

func TestAndConjunctionRowAlignment(t *testing.T) {
	def := &eventlog.Definition{
		CaseID:    "case",
		Activity:  "activity",
		Timestamp: "time",
		Types: map[string]eventlog.ColumnType{
			"x": eventlog.TypeNumber,
			"y": eventlog.TypeNumber,
		},
		Outcome: eventlog.ConditionGroup{{
			{Column: "x", Operator: eventlog.OpEqual, Value: "1"},
			{Column: "y", Operator: eventlog.OpEqual, Value: "1"},
		}},
	}

	// x=1 holds on row one, y=1 on row two; no single row satisfies both.
	out := transform(t, def,
		eventlog.Row{"case": "c1", "activity": "A", "time": "2024-05-01 08:00:00", "x": 1, "y": 0},
		eventlog.Row{"case": "c1", "activity": "B", "time": "2024-05-01 08:05:00", "x": 0, "y": 1},
	)

	require.Equal(t, 2, out.Len())
	for _, row := range out.Rows {
		assert.Equal(t, 0.0, row[eventlog.ColumnOutcome])
	}
}

func TestTreatmentLabelAndResource(t *testing.T) {
	def := transitionDefinition()
	def.Resource = "resource"
	def.Treatment = eventlog.ConditionGroup{{
		{Column: "activity", Operator: eventlog.OpEqual, Value: "X"},
	}}

	withResource := func(r eventlog.Row, resource string) eventlog.Row {
		r["resource"] = resource
		return r
	}
	out := transform(t, def,
		withResource(rawRow("c1", "A", "start", "2024-05-01 08:00:00"), "alice"),
		withResource(rawRow("c1", "A", "complete", "2024-05-01 08:10:00"), "alice"),
		withResource(rawRow("c1", "X", "start", "2024-05-01 08:20:00"), "bob"),
		withResource(rawRow("c1", "X", "complete", "2024-05-01 08:40:00"), "bob"),
		withResource(rawRow("c1", "B", "start", "2024-05-01 09:00:00"), "carol"),
		withResource(rawRow("c1", "B", "complete", "2024-05-01 09:30:00"), "carol"),
	)

	require.Equal(t, 3, out.Len())
	for _, row := range out.Rows {
		assert.Equal(t, 1.0, row[eventlog.ColumnTreatment])
		// Resource comes off the first row matching the treatment group.
		assert.Equal(t, "bob", row[eventlog.ColumnTreatmentResource])
	}
}

func TestTreatmentUnmatchedLeavesResourceEmpty(t *testing.T) {
	def := transitionDefinition()
	def.Resource = "resource"
	def.Treatment = eventlog.ConditionGroup{{
		{Column: "activity", Operator: eventlog.OpEqual, Value: "NEVER"},
	}}

	out := transform(t, def,
		rawRow("c1", "A", "start", "2024-05-01 08:00:00"),
		rawRow("c1", "A", "complete", "2024-05-01 08:10:00"),
	)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, 0.0, out.Rows[0][eventlog.ColumnTreatment])
	assert.Nil(t, out.Rows[0][eventlog.ColumnTreatmentResource])
}

func TestNamespaceRenaming(t *testing.T) {
	def := &eventlog.Definition{
		CaseID:    "case",
		Activity:  "activity",
		Timestamp: "time",
		Types: map[string]eventlog.ColumnType{
			"amount":  eventlog.TypeNumber,
			"channel": eventlog.TypeCategorical,
			"region":  eventlog.TypeText,
		},
		CaseAttributes: []string{"region"},
	}

	out := transform(t, def, eventlog.Row{
		"case": "c1", "activity": "A", "time": "2024-05-01 08:00:00",
		"amount": 12.5, "channel": "web", "region": "north",
		"undeclared": "dropped",
	})

	require.Equal(t, 1, out.Len())
	row := out.Rows[0]
	assert.Equal(t, 12.5, row["EVENT_ATTRIBUTE_NUMBER_amount"])
	assert.Equal(t, "web", row["CATEGORICAL_channel"])
	assert.Equal(t, "north", row["CASE_ATTRIBUTE_TEXT_region"])
	assert.NotContains(t, row, "undeclared")
	assert.NotContains(t, row, "amount")
	assert.False(t, out.HasColumn("undeclared"))
}

func TestShardedRunPreservesCaseOrder(t *testing.T) {
	def := transitionDefinition()
	var rows []eventlog.Row
	for i := 0; i < 24; i++ {
		id := fmt.Sprintf("c%02d", i)
		rows = append(rows,
			rawRow(id, "A", "start", "2024-05-01 08:00:00"),
			rawRow(id, "A", "complete", "2024-05-01 08:10:00"),
		)
	}
	raw := eventlog.NewTable()
	for _, r := range rows {
		raw.Append(r)
	}

	out, err := NewEngine(4, nil).Transform(context.Background(), raw, def)
	require.NoError(t, err)

	require.Equal(t, 24, out.Len())
	for i, row := range out.Rows {
		assert.Equal(t, fmt.Sprintf("c%02d", i), row[eventlog.ColumnCaseID])
	}
}

func TestEmptyLogRejected(t *testing.T) {
	raw := eventlog.NewTable("case", "activity", "time", "transition")
	_, err := NewEngine(1, nil).Transform(context.Background(), raw, transitionDefinition())
	assert.Error(t, err)
}

func TestInvalidDefinitionRejected(t *testing.T) {
	raw := eventlog.NewTable()
	raw.Append(rawRow("c1", "A", "start", "2024-05-01 08:00:00"))

	def := &eventlog.Definition{Activity: "activity", Timestamp: "time"}
	_, err := NewEngine(1, nil).Transform(context.Background(), raw, def)
	assert.Error(t, err)
}
