package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/lifecycle"
	"github.com/prcore/prcore/message"
	"github.com/prcore/prcore/stream"
)

// StartDatasetPrescription fans a DATASET_PRESCRIPTION_REQUEST out to every
// active plugin and returns the result key the caller polls with. Completion
// requires one reply per expected plugin, whatever the order.
func (s *Service) StartDatasetPrescription(ctx context.Context, projectID, dataArtifact string) (string, error) {
	plugins, err := s.projects.ActivePlugins(projectID)
	if err != nil {
		return "", err
	}
	if len(plugins) == 0 {
		return "", errors.WrapInvalid(errors.ErrRequestNotFound, "coordinator", "StartDatasetPrescription",
			"no active plugins for "+projectID)
	}

	resultKey := uuid.NewString()
	expected := make([]string, 0, len(plugins))
	for _, p := range plugins {
		expected = append(expected, p.Key)
	}
	s.bulk.create(resultKey, projectID, expected)

	req := &message.DatasetPrescriptionRequest{
		ProjectID:    projectID,
		ResultKey:    resultKey,
		DataArtifact: dataArtifact,
	}
	for _, p := range plugins {
		if err := s.publish(ctx, p.Key, req, resultKey); err != nil {
			s.logger.Error("dataset prescription send failed",
				"project_id", projectID, "plugin", p.Key, "error", err)
		}
	}
	s.logger.Info("dataset prescription started",
		"project_id", projectID, "result_key", resultKey, "plugins", len(expected))
	return resultKey, nil
}

// DatasetPrescriptionStatus answers a poll: before completion the caller
// sees expected vs finished plugins, never an error.
func (s *Service) DatasetPrescriptionStatus(resultKey string) (BulkStatus, error) {
	return s.bulk.status(resultKey)
}

// FinishDatasetPrescription drops a served bulk request.
func (s *Service) FinishDatasetPrescription(resultKey string) {
	s.bulk.remove(resultKey)
}

// PrepareStreaming tells every trained plugin to load its model. Plugins
// answer STREAMING_READY; the project derives STREAMING once all have.
func (s *Service) PrepareStreaming(ctx context.Context, projectID string) error {
	plugins, err := s.projects.ActivePlugins(projectID)
	if err != nil {
		return err
	}
	prepared := 0
	for _, p := range plugins {
		if p.Status != lifecycle.StatusTrained || p.ModelName == "" {
			continue
		}
		req := &message.StreamingPrepare{ProjectID: projectID, ModelName: p.ModelName}
		if err := s.publish(ctx, p.Key, req, ""); err != nil {
			s.logger.Error("streaming prepare send failed",
				"project_id", projectID, "plugin", p.Key, "error", err)
			continue
		}
		prepared++
	}
	if prepared == 0 {
		return errors.WrapInvalid(errors.ErrProjectNotFound, "coordinator", "PrepareStreaming",
			"no trained plugins for "+projectID)
	}
	return nil
}

// StartStream launches the live or simulated run over the project's held-out
// split.
func (s *Service) StartStream(ctx context.Context, projectID string, simulation bool) error {
	project, err := s.projects.Project(projectID)
	if err != nil {
		return err
	}
	if project.SimulationArtifact == "" {
		return errors.WrapInvalid(errors.ErrArtifactMissing, "coordinator", "StartStream",
			"no holdout split for "+projectID)
	}
	raw, err := s.tables.Get(project.SimulationArtifact)
	if err != nil {
		return err
	}
	table, err := eventlog.Unmarshal(raw)
	if err != nil {
		return err
	}
	return s.streams.Start(ctx, projectID, table, simulation)
}

// StopStream cancels the project's session; the manager's stop callback
// notifies the plugins.
func (s *Service) StopStream(ctx context.Context, projectID string) error {
	return s.streams.Stop(ctx, projectID)
}

// emitStreamingEvent is the session emit callback: one fire-and-forget
// STREAMING_PRESCRIPTION_REQUEST per currently-streaming plugin. No
// completion counting here; the event is served once written to the feed,
// however many plugins reply.
func (s *Service) emitStreamingEvent(ctx context.Context, projectID string, ev stream.Event) error {
	plugins, err := s.projects.ActivePlugins(projectID)
	if err != nil {
		return err
	}
	req := &message.StreamingPrescriptionRequest{
		ProjectID: projectID,
		EventID:   ev.EventID,
		CaseID:    ev.CaseID,
		Prefix:    ev.Prefix,
	}
	sent := 0
	for _, p := range plugins {
		if p.Status != lifecycle.StatusStreaming {
			continue
		}
		if err := s.publish(ctx, p.Key, req, ev.EventID); err != nil {
			s.logger.Error("streaming prescription send failed",
				"project_id", projectID, "plugin", p.Key, "error", err)
			continue
		}
		sent++
	}
	if sent == 0 {
		s.logger.Debug("no streaming plugins for event", "project_id", projectID, "event_id", ev.EventID)
	}
	return nil
}

// notifyStreamingStop is the session stop callback: STREAMING_STOP to every
// active plugin so they evict cached model state, and the plugins re-arm to
// TRAINED.
func (s *Service) notifyStreamingStop(ctx context.Context, projectID string) {
	plugins, err := s.projects.ActivePlugins(projectID)
	if err != nil {
		return
	}
	msg := &message.StreamingStop{ProjectID: projectID}
	for _, p := range plugins {
		if err := s.publish(ctx, p.Key, msg, ""); err != nil {
			s.logger.Warn("streaming stop send failed",
				"project_id", projectID, "plugin", p.Key, "error", err)
		}
		if p.Status == lifecycle.StatusStreaming {
			if err := s.projects.SetPluginStatus(projectID, p.Key, lifecycle.StatusTrained); err != nil {
				s.logger.Warn("re-arm transition rejected",
					"project_id", projectID, "plugin", p.Key, "error", err)
			}
		}
	}
}
