package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/lifecycle"
	"github.com/prcore/prcore/message"
)

// trainFraction is the grouped split ratio: this share of cases trains, the
// rest is held out for simulation.
const trainFraction = 0.8

// StartPreProcessing kicks off the pre-processing workflow for a project:
// grouped 80/20 split of the uploaded log, PROCESS_REQUEST to the
// transformation worker, then an asynchronous wait on the correlated reply.
// On success the processed table is recorded and TRAINING_DATA fans out to
// every active plugin; on failure the project is marked ERROR. The
// synchronous part returns once the request is on the wire.
func (s *Service) StartPreProcessing(ctx context.Context, projectID, rawArtifact string) error {
	project, err := s.projects.Project(projectID)
	if err != nil {
		return err
	}
	if err := s.projects.SetOverride(projectID, lifecycle.ProjectPreprocessing); err != nil {
		return err
	}

	raw, err := s.tables.Get(rawArtifact)
	if err != nil {
		return s.failPreProcessing(projectID, "load uploaded log", err)
	}
	table, err := eventlog.Unmarshal(raw)
	if err != nil {
		return s.failPreProcessing(projectID, "decode uploaded log", err)
	}

	train, holdout, err := eventlog.SplitGrouped(table, project.Definition.CaseID, trainFraction)
	if err != nil {
		return s.failPreProcessing(projectID, "split log", err)
	}

	trainArtifact, err := s.storeTable(train)
	if err != nil {
		return s.failPreProcessing(projectID, "store training split", err)
	}
	holdoutArtifact, err := s.storeTable(holdout)
	if err != nil {
		return s.failPreProcessing(projectID, "store holdout split", err)
	}
	if err := s.projects.SetSimulationArtifact(projectID, holdoutArtifact); err != nil {
		return err
	}

	requestKey := uuid.NewString()
	fut := s.futures.register(requestKey)

	req := &message.ProcessRequest{
		ProjectID:   projectID,
		RequestKey:  requestKey,
		RawArtifact: trainArtifact,
		Definition:  project.Definition,
	}
	if err := s.publish(ctx, s.cfg.Worker.ProcessorQueue, req, requestKey); err != nil {
		return s.failPreProcessing(projectID, "send process request", err)
	}
	s.logger.Info("pre-processing started",
		"project_id", projectID, "request_key", requestKey,
		"train_rows", train.Len(), "holdout_rows", holdout.Len())

	go s.awaitProcessResult(projectID, requestKey, fut)
	return nil
}

// awaitProcessResult blocks on the correlated PROCESS_RESULT with the
// configured timeout. Exactly one of the outcomes runs: fan-out on success,
// project ERROR on failure. "No result" is a hard failure, never retried.
func (s *Service) awaitProcessResult(projectID, requestKey string, fut processFuture) {
	result, err := fut.Wait(s.runCtx, s.cfg.Policy.PreprocessTimeout.Std())
	switch {
	case err != nil:
		_ = s.failPreProcessing(projectID, "await process result", err)
		return
	case result == nil || result.ResultArtifact == "":
		detail := "engine returned no result"
		if result != nil && result.Detail != "" {
			detail = result.Detail
		}
		_ = s.failPreProcessing(projectID, "process", errors.New(detail))
		return
	}

	// The artifact must actually exist before plugins are pointed at it.
	if _, err := s.tables.Get(result.ResultArtifact); err != nil {
		_ = s.failPreProcessing(projectID, "verify processed artifact", err)
		return
	}
	if err := s.projects.SetDataArtifact(projectID, result.ResultArtifact); err != nil {
		s.logger.Warn("record data artifact failed", "project_id", projectID, "error", err)
		return
	}
	if err := s.projects.ClearOverride(projectID); err != nil {
		s.logger.Warn("clear override failed", "project_id", projectID, "error", err)
	}

	s.fanOutTrainingData(projectID, result.ResultArtifact, requestKey)
}

// fanOutTrainingData offers the processed table to every active plugin.
// Requests are identical apart from each plugin's own parameter overrides
// and additional info.
func (s *Service) fanOutTrainingData(projectID, dataArtifact, requestKey string) {
	project, err := s.projects.Project(projectID)
	if err != nil {
		s.logger.Warn("fan out aborted, project gone", "project_id", projectID)
		return
	}
	plugins, err := s.projects.ActivePlugins(projectID)
	if err != nil || len(plugins) == 0 {
		s.logger.Warn("no active plugins to train", "project_id", projectID)
		return
	}

	for _, plugin := range plugins {
		td := trainingRequest(&project, &plugin, dataArtifact)
		if err := s.publish(s.runCtx, plugin.Key, td, requestKey); err != nil {
			s.logger.Error("training data send failed",
				"project_id", projectID, "plugin", plugin.Key, "error", err)
			continue
		}
		if err := s.projects.SetPluginStatus(projectID, plugin.Key, lifecycle.StatusPreprocessing); err != nil {
			s.logger.Warn("preprocessing transition rejected",
				"project_id", projectID, "plugin", plugin.Key, "error", err)
		}
	}
	s.logger.Info("training data fanned out",
		"project_id", projectID, "plugins", len(plugins), "artifact", dataArtifact)
}

// trainingRequest builds one plugin's TRAINING_DATA offer. Two plugins on
// the same project get requests identical apart from their own parameter
// overrides and additional info.
func trainingRequest(project *lifecycle.Project, plugin *lifecycle.Plugin, dataArtifact string) *message.TrainingData {
	info := map[string]any{
		"defined_outcome":   len(project.Definition.Outcome) > 0,
		"defined_treatment": len(project.Definition.Treatment) > 0,
	}
	for k, v := range plugin.AdditionalInfo {
		info[k] = v
	}
	return &message.TrainingData{
		ProjectID:      project.ID,
		DataArtifact:   dataArtifact,
		Parameters:     plugin.Parameters,
		AdditionalInfo: info,
	}
}

func (s *Service) failPreProcessing(projectID, stage string, err error) error {
	s.logger.Error("pre-processing failed", "project_id", projectID, "stage", stage, "error", err)
	if serr := s.projects.SetOverride(projectID, lifecycle.ProjectError); serr != nil {
		s.logger.Warn("mark error failed", "project_id", projectID, "error", serr)
	}
	return errors.Wrap(err, "coordinator", "StartPreProcessing", stage)
}

func (s *Service) storeTable(t *eventlog.Table) (string, error) {
	raw, err := t.Marshal()
	if err != nil {
		return "", err
	}
	return s.tables.Put(raw)
}
