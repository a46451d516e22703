package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		statuses []PluginStatus
		want     ProjectStatus
	}{
		{
			name:     "empty set is waiting",
			statuses: nil,
			want:     ProjectWaiting,
		},
		{
			name:     "single error dominates",
			statuses: []PluginStatus{StatusStreaming, StatusError, StatusTrained},
			want:     ProjectError,
		},
		{
			name:     "all streaming",
			statuses: []PluginStatus{StatusStreaming, StatusStreaming},
			want:     ProjectStreaming,
		},
		{
			name:     "trained mixed with streaming",
			statuses: []PluginStatus{StatusTrained, StatusStreaming},
			want:     ProjectTrained,
		},
		{
			name:     "training is the floor",
			statuses: []PluginStatus{StatusTraining, StatusTrained, StatusStreaming},
			want:     ProjectTraining,
		},
		{
			name:     "preprocessing is the floor",
			statuses: []PluginStatus{StatusPreprocessing, StatusTraining},
			want:     ProjectPreprocessing,
		},
		{
			name:     "waiting mixed with progressed plugins",
			statuses: []PluginStatus{StatusWaiting, StatusTrained, StatusStreaming},
			want:     ProjectWaiting,
		},
		{
			name:     "all waiting",
			statuses: []PluginStatus{StatusWaiting, StatusWaiting},
			want:     ProjectWaiting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectStatusOf(tt.statuses))
		})
	}
}

func TestProjectStatusOfOrderIndependent(t *testing.T) {
	// The reduction works on a multiset; permutations must agree.
	a := []PluginStatus{StatusWaiting, StatusTraining, StatusStreaming}
	b := []PluginStatus{StatusStreaming, StatusWaiting, StatusTraining}
	c := []PluginStatus{StatusTraining, StatusStreaming, StatusWaiting}

	want := ProjectStatusOf(a)
	assert.Equal(t, want, ProjectStatusOf(b))
	assert.Equal(t, want, ProjectStatusOf(c))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from PluginStatus
		to   PluginStatus
		want bool
	}{
		{"forward single step", StatusWaiting, StatusPreprocessing, true},
		{"forward skip", StatusWaiting, StatusTraining, true},
		{"to error from anywhere", StatusTrained, StatusError, true},
		{"backward rejected", StatusTrained, StatusTraining, false},
		{"self rejected", StatusTraining, StatusTraining, false},
		{"out of error rejected", StatusError, StatusWaiting, false},
		{"streaming rearm to trained", StatusStreaming, StatusTrained, true},
		{"streaming back to waiting rejected", StatusStreaming, StatusWaiting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "WAITING", StatusWaiting.String())
	assert.Equal(t, "STREAMING", StatusStreaming.String())
	assert.Equal(t, "ERROR", ProjectError.String())
	assert.Equal(t, "UNKNOWN", PluginStatus(99).String())
}
