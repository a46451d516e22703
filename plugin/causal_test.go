package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcore/prcore/eventlog"
)

// labeledCase appends a single-row case carrying outcome and treatment
// labels.
func labeledCase(t *eventlog.Table, caseID string, outcome, treatment float64, resource string) {
	row := eventlog.Row{
		eventlog.ColumnCaseID:    caseID,
		eventlog.ColumnActivity:  "work",
		eventlog.ColumnOutcome:   outcome,
		eventlog.ColumnTreatment: treatment,
	}
	if resource != "" {
		row[eventlog.ColumnTreatmentResource] = resource
	}
	t.Append(row)
}

func upliftTable() *eventlog.Table {
	table := eventlog.NewTable()
	// Treated cases succeed 3/4, control 1/4: uplift 0.5.
	labeledCase(table, "t1", 1, 1, "alice")
	labeledCase(table, "t2", 1, 1, "alice")
	labeledCase(table, "t3", 1, 1, "bob")
	labeledCase(table, "t4", 0, 1, "alice")
	labeledCase(table, "c1", 1, 0, "")
	labeledCase(table, "c2", 0, 0, "")
	labeledCase(table, "c3", 0, 0, "")
	labeledCase(table, "c4", 0, 0, "")
	return table
}

func trainCausal(t *testing.T, table *eventlog.Table, params map[string]any) Model {
	t.Helper()
	alg, err := New("causal")
	require.NoError(t, err)
	m, err := alg.Train(context.Background(), table, params)
	require.NoError(t, err)
	return m
}

func TestCausalEstimatesUplift(t *testing.T) {
	m := trainCausal(t, upliftTable(), nil)

	prefix := []eventlog.Row{{eventlog.ColumnActivity: "work", eventlog.ColumnTreatment: 0.0}}
	p, err := m.Prescribe("c", prefix)
	require.NoError(t, err)
	require.NotNil(t, p)

	out := p.Output.(map[string]any)
	assert.Equal(t, true, out["treat"])
	assert.InDelta(t, 0.5, out["uplift"], 1e-9)
	assert.Equal(t, "alice", out["resource"], "most frequent treatment executor")
}

func TestCausalMinUpliftThreshold(t *testing.T) {
	m := trainCausal(t, upliftTable(), map[string]any{"min_uplift": 0.9})

	prefix := []eventlog.Row{{eventlog.ColumnActivity: "work"}}
	p, err := m.Prescribe("c", prefix)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, false, p.Output.(map[string]any)["treat"])
}

func TestCausalAlreadyTreatedCaseSkipped(t *testing.T) {
	m := trainCausal(t, upliftTable(), nil)

	prefix := []eventlog.Row{{eventlog.ColumnActivity: "work", eventlog.ColumnTreatment: 1.0}}
	p, err := m.Prescribe("c", prefix)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCausalRequiresTreatmentContrast(t *testing.T) {
	table := eventlog.NewTable()
	labeledCase(table, "t1", 1, 1, "alice")
	labeledCase(table, "t2", 0, 1, "bob")

	alg, err := New("causal")
	require.NoError(t, err)
	_, err = alg.Train(context.Background(), table, nil)
	assert.Error(t, err, "one-sided treatment groups cannot be contrasted")
}

func TestCausalModelRoundTrip(t *testing.T) {
	alg, err := New("causal")
	require.NoError(t, err)
	m := trainCausal(t, upliftTable(), nil)

	raw, err := m.Marshal()
	require.NoError(t, err)
	restored, err := alg.Restore(raw)
	require.NoError(t, err)

	p, err := restored.Prescribe("c", []eventlog.Row{{eventlog.ColumnActivity: "work"}})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 0.5, p.Output.(map[string]any)["uplift"].(float64), 1e-9)
}

func TestCausalApplicability(t *testing.T) {
	alg, err := New("causal")
	require.NoError(t, err)

	ok, _ := alg.Applicable(map[string]any{"defined_outcome": true, "defined_treatment": true})
	assert.True(t, ok)

	ok, reason := alg.Applicable(map[string]any{"defined_outcome": true})
	assert.False(t, ok)
	assert.Contains(t, reason, "treatment")
}
