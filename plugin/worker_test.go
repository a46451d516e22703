package plugin

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcore/prcore/config"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/message"
)

// newTestWorker builds a worker that never connects. Replies fail with
// ErrNoConnection, which handlers absorb; tests assert on held state and on
// the artifact directories.
func newTestWorker(t *testing.T, algorithm string) *Worker {
	t.Helper()

	cfg := config.Default()
	cfg.Worker.Algorithm = algorithm
	cfg.Artifacts.TablesDir = t.TempDir()
	cfg.Artifacts.ModelsDir = t.TempDir()

	w, err := NewWorker(cfg, nil, slog.Default())
	require.NoError(t, err)
	return w
}

func storeTrainingTable(t *testing.T, w *Worker) string {
	t.Helper()
	table := eventlog.NewTable()
	trace(table, "c1", 1, "review", "approve")
	trace(table, "c2", 0, "review", "escalate")
	raw, err := table.Marshal()
	require.NoError(t, err)
	name, err := w.tables.Put(raw)
	require.NoError(t, err)
	return name
}

func TestWorkerUnknownAlgorithm(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.Algorithm = "nope"
	_, err := NewWorker(cfg, nil, nil)
	assert.Error(t, err)
}

func TestWorkerTrainingDataHoldsTable(t *testing.T) {
	w := newTestWorker(t, "knn")
	artifact := storeTrainingTable(t, w)

	w.dispatch(context.Background(), &message.TrainingData{
		ProjectID:      "p1",
		DataArtifact:   artifact,
		Parameters:     map[string]any{"min_support": 1},
		AdditionalInfo: map[string]any{"defined_outcome": true},
	}, "")

	state := w.projects["p1"]
	require.NotNil(t, state)
	assert.Equal(t, 4, state.table.Len())
	assert.Nil(t, state.model)
}

func TestWorkerDeclinedOfferHoldsNothing(t *testing.T) {
	w := newTestWorker(t, "causal")

	w.dispatch(context.Background(), &message.TrainingData{
		ProjectID:      "p1",
		DataArtifact:   "irrelevant",
		AdditionalInfo: map[string]any{"defined_outcome": true},
	}, "")

	assert.Nil(t, w.projects["p1"])
}

func TestWorkerTrainingStoresModelArtifact(t *testing.T) {
	w := newTestWorker(t, "knn")
	artifact := storeTrainingTable(t, w)

	w.dispatch(context.Background(), &message.TrainingData{
		ProjectID:      "p1",
		DataArtifact:   artifact,
		Parameters:     map[string]any{"min_support": 1},
		AdditionalInfo: map[string]any{"defined_outcome": true},
	}, "")
	w.dispatch(context.Background(), &message.TrainingStart{ProjectID: "p1"}, "")

	state := w.projects["p1"]
	require.NotNil(t, state)
	assert.NotNil(t, state.model, "trained model stays cached")
	assert.Nil(t, state.table, "training table is released")

	entries, err := os.ReadDir(w.models.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "one model artifact on disk")
}

func TestWorkerTrainingWithoutDataIsAFault(t *testing.T) {
	w := newTestWorker(t, "knn")
	// No TRAINING_DATA was delivered; the handler reports and holds nothing.
	w.dispatch(context.Background(), &message.TrainingStart{ProjectID: "p1"}, "")
	assert.Nil(t, w.projects["p1"])
}

func TestWorkerStreamingPrepareRestoresModel(t *testing.T) {
	w := newTestWorker(t, "knn")

	m := trainFrequency(t, func() *eventlog.Table {
		table := eventlog.NewTable()
		trace(table, "c1", 1, "a", "b")
		return table
	}(), map[string]any{"min_support": 1})
	raw, err := m.Marshal()
	require.NoError(t, err)
	name, err := w.models.Put(raw)
	require.NoError(t, err)

	w.dispatch(context.Background(), &message.StreamingPrepare{
		ProjectID: "p1", ModelName: name,
	}, "")

	require.NotNil(t, w.projects["p1"])
	assert.NotNil(t, w.projects["p1"].model)
}

func TestWorkerStreamingPrepareMissingModelIsAFault(t *testing.T) {
	w := newTestWorker(t, "knn")
	w.dispatch(context.Background(), &message.StreamingPrepare{
		ProjectID: "p1", ModelName: "gone",
	}, "")
	assert.Nil(t, w.projects["p1"])
}

func TestWorkerStreamingStopEvictsModel(t *testing.T) {
	w := newTestWorker(t, "knn")
	artifact := storeTrainingTable(t, w)

	w.dispatch(context.Background(), &message.TrainingData{
		ProjectID:      "p1",
		DataArtifact:   artifact,
		Parameters:     map[string]any{"min_support": 1},
		AdditionalInfo: map[string]any{"defined_outcome": true},
	}, "")
	w.dispatch(context.Background(), &message.TrainingStart{ProjectID: "p1"}, "")
	require.NotNil(t, w.model("p1"))

	w.dispatch(context.Background(), &message.StreamingStop{ProjectID: "p1"}, "")
	assert.Nil(t, w.model("p1"))
}

func TestWorkerLoadCases(t *testing.T) {
	w := newTestWorker(t, "knn")
	artifact := storeTrainingTable(t, w)

	groups, err := w.loadCases(artifact)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "c1", groups[0].CaseID)

	_, err = w.loadCases("missing")
	assert.Error(t, err)
}
