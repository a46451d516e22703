package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
)

func testDefinition() eventlog.Definition {
	return eventlog.Definition{
		CaseID:    "case",
		Activity:  "activity",
		Timestamp: "timestamp",
	}
}

func TestRegistryProjectLifecycle(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn", "causal"}, nil)

	status, err := r.Status("p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectWaiting, status)

	require.NoError(t, r.SetPluginStatus("p1", "knn", StatusPreprocessing))
	require.NoError(t, r.SetPluginStatus("p1", "causal", StatusPreprocessing))

	status, err = r.Status("p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectPreprocessing, status)

	require.NoError(t, r.SetPluginStatus("p1", "knn", StatusTraining))
	require.NoError(t, r.SetPluginStatus("p1", "knn", StatusTrained))

	// Floor is still the slower plugin.
	status, err = r.Status("p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectPreprocessing, status)
}

func TestRegistryRejectsBackwardTransition(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn"}, nil)

	require.NoError(t, r.SetPluginStatus("p1", "knn", StatusTrained))

	err := r.SetPluginStatus("p1", "knn", StatusTraining)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	// Record untouched.
	p, err := r.Project("p1")
	require.NoError(t, err)
	assert.Equal(t, StatusTrained, p.Plugins["knn"].Status)
}

func TestRegistryOverride(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn"}, nil)

	require.NoError(t, r.SetOverride("p1", ProjectPreprocessing))
	status, err := r.Status("p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectPreprocessing, status)

	require.NoError(t, r.ClearOverride("p1"))
	status, err = r.Status("p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectWaiting, status)
}

func TestRegistryDisabledExcluded(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn", "causal"}, nil)

	require.NoError(t, r.SetPluginStatus("p1", "knn", StatusStreaming))
	require.NoError(t, r.DisablePlugin("p1", "causal"))

	status, err := r.Status("p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectStreaming, status)

	active, err := r.ActivePlugins("p1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "knn", active[0].Key)
}

func TestRegistryErroredExcludedFromActive(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn", "causal"}, nil)

	require.NoError(t, r.SetPluginError("p1", "causal", "model blew up"))

	active, err := r.ActivePlugins("p1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "knn", active[0].Key)

	status, err := r.Status("p1")
	require.NoError(t, err)
	assert.Equal(t, ProjectError, status)

	p, err := r.Project("p1")
	require.NoError(t, err)
	assert.Equal(t, "model blew up", p.Plugins["causal"].LastError)
}

func TestRegistryRedefineResetsPlugins(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn"}, nil)
	require.NoError(t, r.SetPluginStatus("p1", "knn", StatusStreaming))

	r.CreateProject("p1", testDefinition(), []string{"knn"}, nil)

	p, err := r.Project("p1")
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, p.Plugins["knn"].Status)
}

func TestRegistryUnknownLookups(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn"}, nil)

	_, err := r.Project("missing")
	assert.True(t, errors.Is(err, errors.ErrProjectNotFound))

	err = r.SetPluginStatus("p1", "missing", StatusTraining)
	assert.True(t, errors.Is(err, errors.ErrPluginNotFound))
}

func TestRegistryProjectCopiesAreIsolated(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn"}, map[string]map[string]any{
		"knn": {"n_neighbors": 3},
	})

	p, err := r.Project("p1")
	require.NoError(t, err)
	p.Plugins["knn"].Status = StatusError
	p.Plugins["knn"].Parameters["n_neighbors"] = 99

	fresh, err := r.Project("p1")
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, fresh.Plugins["knn"].Status)
	assert.Equal(t, 3, fresh.Plugins["knn"].Parameters["n_neighbors"])
}

func TestRegistrySetAdditionalInfoMerges(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateProject("p1", testDefinition(), []string{"knn"}, nil)

	require.NoError(t, r.SetAdditionalInfo("p1", "knn", map[string]any{
		"training_rows": 200, "training_cases": 10,
	}))
	require.NoError(t, r.SetAdditionalInfo("p1", "knn", map[string]any{
		"training_cases": 12,
	}))

	p, err := r.Project("p1")
	require.NoError(t, err)
	assert.Equal(t, 12, p.Plugins["knn"].AdditionalInfo["training_cases"])
	assert.Equal(t, 200, p.Plugins["knn"].AdditionalInfo["training_rows"])

	err = r.SetAdditionalInfo("p1", "ghost", map[string]any{"training_rows": 1})
	assert.True(t, errors.Is(err, errors.ErrPluginNotFound))
}
