// Package lifecycle defines the plugin lifecycle state machine and the pure
// reduction that derives one project status from the statuses of its
// non-disabled plugins.
package lifecycle

// PluginStatus is the lifecycle state of one plugin within a project.
// Statuses move forward only: WAITING, PREPROCESSING, TRAINING, TRAINED,
// STREAMING, with ERROR terminal and reachable from any state. Disabled is
// an orthogonal flag on the plugin record, not a status.
type PluginStatus int

const (
	// StatusWaiting: registered, no training data offered yet.
	StatusWaiting PluginStatus = iota
	// StatusPreprocessing: training data offered, applicability pending.
	StatusPreprocessing
	// StatusTraining: training in progress.
	StatusTraining
	// StatusTrained: model artifact stored.
	StatusTrained
	// StatusStreaming: model loaded, serving streaming prescriptions.
	StatusStreaming
	// StatusError: terminal fault state; excluded from fan-outs.
	StatusError
)

// String returns the wire/logging representation.
func (s PluginStatus) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusPreprocessing:
		return "PREPROCESSING"
	case StatusTraining:
		return "TRAINING"
	case StatusTrained:
		return "TRAINED"
	case StatusStreaming:
		return "STREAMING"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether a plugin may move from one status to
// another: one step or several steps forward, or to ERROR from anywhere.
// Re-arming a stopped stream (STREAMING back to TRAINED) is the one
// sanctioned backward move.
func CanTransition(from, to PluginStatus) bool {
	if to == StatusError {
		return true
	}
	if from == StatusError {
		return false
	}
	if from == StatusStreaming && to == StatusTrained {
		return true
	}
	return to > from && to <= StatusStreaming
}

// ProjectStatus is the aggregated status of a project.
type ProjectStatus int

const (
	// ProjectWaiting is also the documented policy for a project with zero
	// non-disabled plugins: nothing has made progress, and WAITING is the
	// only state an empty multiset can vacuously satisfy.
	ProjectWaiting ProjectStatus = iota
	// ProjectPreprocessing is set directly by the orchestrator while the
	// transformation engine runs, and also derivable from plugin statuses.
	ProjectPreprocessing
	// ProjectTraining: at least one plugin still training, rest further on.
	ProjectTraining
	// ProjectTrained: every plugin trained or already streaming.
	ProjectTrained
	// ProjectStreaming: every plugin streaming.
	ProjectStreaming
	// ProjectError surfaces plugin errors; it blocks further lifecycle
	// transitions until the project is redefined.
	ProjectError
)

// String returns the wire/logging representation.
func (s ProjectStatus) String() string {
	switch s {
	case ProjectWaiting:
		return "WAITING"
	case ProjectPreprocessing:
		return "PREPROCESSING"
	case ProjectTraining:
		return "TRAINING"
	case ProjectTrained:
		return "TRAINED"
	case ProjectStreaming:
		return "STREAMING"
	case ProjectError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ProjectStatusOf reduces the statuses of a project's non-disabled plugins
// to one project status. The precedence is ordered by readiness: errors
// surface first, then the highest floor every plugin has cleared. A mixed
// multiset containing WAITING plugins recurses on the WAITING cohort so the
// slowest cohort's status wins. Zero statuses yield WAITING.
func ProjectStatusOf(statuses []PluginStatus) ProjectStatus {
	if len(statuses) == 0 {
		return ProjectWaiting
	}

	for _, s := range statuses {
		if s == StatusError {
			return ProjectError
		}
	}

	if allIn(statuses, StatusStreaming) {
		return ProjectStreaming
	}
	if allIn(statuses, StatusTrained, StatusStreaming) {
		return ProjectTrained
	}
	if allIn(statuses, StatusTraining, StatusTrained, StatusStreaming) {
		return ProjectTraining
	}
	if allIn(statuses, StatusPreprocessing, StatusTraining, StatusTrained, StatusStreaming) {
		return ProjectPreprocessing
	}
	if allIn(statuses, StatusWaiting, StatusPreprocessing, StatusTraining, StatusTrained, StatusStreaming) {
		return ProjectWaiting
	}

	var waiting []PluginStatus
	for _, s := range statuses {
		if s == StatusWaiting {
			waiting = append(waiting, s)
		}
	}
	if len(waiting) > 0 {
		return ProjectStatusOf(waiting)
	}

	// Unreachable for well-formed statuses; kept as the documented fallback.
	return ProjectError
}

func allIn(statuses []PluginStatus, allowed ...PluginStatus) bool {
	for _, s := range statuses {
		found := false
		for _, a := range allowed {
			if s == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
