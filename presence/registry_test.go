package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportAndActive(t *testing.T) {
	r := NewRegistry(15*time.Minute, nil)

	r.Report("knn", "k nearest neighbors", map[string]any{"n_neighbors": 3})
	r.Report("causal", "uplift estimation", nil)

	active := r.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "causal", active[0].PluginKey)
	assert.Equal(t, "knn", active[1].PluginKey)

	rec, ok := r.Get("knn")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Parameters["n_neighbors"])
}

func TestStalenessThreshold(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := NewRegistry(15*time.Minute, nil, withClock(clock))

	r.Report("knn", "", nil)
	assert.True(t, r.IsActive("knn"))

	// 14 minutes later, still active.
	now = now.Add(14 * time.Minute)
	assert.True(t, r.IsActive("knn"))
	assert.Len(t, r.Active(), 1)

	// Past the threshold, stale but not forgotten.
	now = now.Add(2 * time.Minute)
	assert.False(t, r.IsActive("knn"))
	assert.Empty(t, r.Active())
	_, ok := r.Get("knn")
	assert.True(t, ok)
}

func TestReportRefreshesLastSeen(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := NewRegistry(15*time.Minute, nil, withClock(clock))

	r.Report("knn", "", nil)
	now = now.Add(14 * time.Minute)
	r.Report("knn", "", nil)
	now = now.Add(14 * time.Minute)
	assert.True(t, r.IsActive("knn"))
}

func TestForget(t *testing.T) {
	r := NewRegistry(15*time.Minute, nil)
	r.Report("knn", "", nil)
	r.Forget("knn")

	_, ok := r.Get("knn")
	assert.False(t, ok)
	assert.False(t, r.IsActive("knn"))
}

func TestUnknownPluginInactive(t *testing.T) {
	r := NewRegistry(15*time.Minute, nil)
	assert.False(t, r.IsActive("never-seen"))
}
