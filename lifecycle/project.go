package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
)

// Plugin is the coordinator's record of one plugin's participation in a
// project. Fields are managed by the Registry; callers receive copies.
type Plugin struct {
	Key            string
	Status         PluginStatus
	Parameters     map[string]any
	AdditionalInfo map[string]any
	ModelName      string
	Disabled       bool
	LastError      string
	UpdatedAt      time.Time
}

// Project is the coordinator's record of one process-monitoring project.
type Project struct {
	ID         string
	Definition eventlog.Definition
	// DataArtifact names the transformed event log produced by
	// pre-processing; empty until the processor reports back.
	DataArtifact string
	// SimulationArtifact names the held-out split reserved for simulation.
	SimulationArtifact string
	// Override is the project status forced by the orchestrator while no
	// plugin-derived status applies (PREPROCESSING during transformation,
	// ERROR after an orchestration fault). Nil means derive from plugins.
	Override  *ProjectStatus
	Plugins   map[string]*Plugin
	CreatedAt time.Time
}

// Registry owns all project and plugin lifecycle state. Every mutation is
// guarded and transition-checked here so callers never hold raw records.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*Project
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		projects: make(map[string]*Project),
		logger:   logger.With("component", "lifecycle"),
	}
}

// CreateProject registers a project, replacing any previous record with the
// same id. Redefining a project discards all prior plugin progress.
func (r *Registry) CreateProject(id string, def eventlog.Definition, pluginKeys []string, params map[string]map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	p := &Project{
		ID:         id,
		Definition: def,
		Plugins:    make(map[string]*Plugin, len(pluginKeys)),
		CreatedAt:  now,
	}
	for _, key := range pluginKeys {
		p.Plugins[key] = &Plugin{
			Key:        key,
			Status:     StatusWaiting,
			Parameters: params[key],
			UpdatedAt:  now,
		}
	}
	if _, exists := r.projects[id]; exists {
		r.logger.Info("project redefined, prior plugin state discarded", "project_id", id)
	}
	r.projects[id] = p
}

// DeleteProject removes a project record. Unknown ids are a no-op.
func (r *Registry) DeleteProject(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
}

// Project returns a deep copy of the project record.
func (r *Registry) Project(id string) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return Project{}, errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", "Project", "lookup of "+id)
	}
	return copyProject(p), nil
}

// SetDataArtifact records the transformed event log artifact for a project.
func (r *Registry) SetDataArtifact(id, artifact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", "SetDataArtifact", "lookup of "+id)
	}
	p.DataArtifact = artifact
	return nil
}

// SetSimulationArtifact records the held-out split artifact for a project.
func (r *Registry) SetSimulationArtifact(id, artifact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", "SetSimulationArtifact", "lookup of "+id)
	}
	p.SimulationArtifact = artifact
	return nil
}

// SetOverride forces the project status regardless of plugin statuses.
func (r *Registry) SetOverride(id string, status ProjectStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", "SetOverride", "lookup of "+id)
	}
	s := status
	p.Override = &s
	return nil
}

// ClearOverride returns the project to plugin-derived status.
func (r *Registry) ClearOverride(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", "ClearOverride", "lookup of "+id)
	}
	p.Override = nil
	return nil
}

// SetPluginStatus advances one plugin through the lifecycle. Transitions
// that the state machine forbids are rejected without mutating the record.
func (r *Registry) SetPluginStatus(projectID, pluginKey string, status PluginStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, err := r.plugin(projectID, pluginKey, "SetPluginStatus")
	if err != nil {
		return err
	}
	if !CanTransition(pl.Status, status) {
		return errors.WrapInvalid(errors.ErrInvalidTransition, "lifecycle", "SetPluginStatus",
			"transition from "+pl.Status.String()+" to "+status.String())
	}
	pl.Status = status
	pl.UpdatedAt = time.Now()
	return nil
}

// SetPluginError moves one plugin to ERROR and records the fault detail.
func (r *Registry) SetPluginError(projectID, pluginKey, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, err := r.plugin(projectID, pluginKey, "SetPluginError")
	if err != nil {
		return err
	}
	pl.Status = StatusError
	pl.LastError = detail
	pl.UpdatedAt = time.Now()
	r.logger.Warn("plugin errored", "project_id", projectID, "plugin", pluginKey, "detail", detail)
	return nil
}

// DisablePlugin excludes one plugin from fan-outs and status aggregation.
func (r *Registry) DisablePlugin(projectID, pluginKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, err := r.plugin(projectID, pluginKey, "DisablePlugin")
	if err != nil {
		return err
	}
	pl.Disabled = true
	pl.UpdatedAt = time.Now()
	return nil
}

// SetModelName stores the trained model artifact name on the plugin record.
func (r *Registry) SetModelName(projectID, pluginKey, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, err := r.plugin(projectID, pluginKey, "SetModelName")
	if err != nil {
		return err
	}
	pl.ModelName = name
	pl.UpdatedAt = time.Now()
	return nil
}

// SetAdditionalInfo merges plugin-reported info into the record.
func (r *Registry) SetAdditionalInfo(projectID, pluginKey string, info map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, err := r.plugin(projectID, pluginKey, "SetAdditionalInfo")
	if err != nil {
		return err
	}
	if pl.AdditionalInfo == nil {
		pl.AdditionalInfo = make(map[string]any, len(info))
	}
	for k, v := range info {
		pl.AdditionalInfo[k] = v
	}
	pl.UpdatedAt = time.Now()
	return nil
}

// ActivePlugins returns copies of the project's plugins that participate in
// fan-outs: not disabled and not errored.
func (r *Registry) ActivePlugins(projectID string) ([]Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[projectID]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", "ActivePlugins", "lookup of "+projectID)
	}
	var out []Plugin
	for _, pl := range p.Plugins {
		if pl.Disabled || pl.Status == StatusError {
			continue
		}
		out = append(out, copyPlugin(pl))
	}
	return out, nil
}

// Status returns the project's aggregated status: the override when one is
// set, otherwise the reduction over non-disabled plugin statuses.
func (r *Registry) Status(projectID string) (ProjectStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[projectID]
	if !ok {
		return ProjectWaiting, errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", "Status", "lookup of "+projectID)
	}
	if p.Override != nil {
		return *p.Override, nil
	}
	var statuses []PluginStatus
	for _, pl := range p.Plugins {
		if pl.Disabled {
			continue
		}
		statuses = append(statuses, pl.Status)
	}
	return ProjectStatusOf(statuses), nil
}

func (r *Registry) plugin(projectID, pluginKey, method string) (*Plugin, error) {
	p, ok := r.projects[projectID]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrProjectNotFound, "lifecycle", method, "lookup of "+projectID)
	}
	pl, ok := p.Plugins[pluginKey]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrPluginNotFound, "lifecycle", method, "lookup of "+pluginKey)
	}
	return pl, nil
}

func copyProject(p *Project) Project {
	out := *p
	out.Plugins = make(map[string]*Plugin, len(p.Plugins))
	for k, pl := range p.Plugins {
		cp := copyPlugin(pl)
		out.Plugins[k] = &cp
	}
	if p.Override != nil {
		s := *p.Override
		out.Override = &s
	}
	return out
}

func copyPlugin(pl *Plugin) Plugin {
	out := *pl
	out.Parameters = copyMap(pl.Parameters)
	out.AdditionalInfo = copyMap(pl.AdditionalInfo)
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
