package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prcore/prcore/artifact"
	"github.com/prcore/prcore/config"
	"github.com/prcore/prcore/dedup"
	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/message"
	"github.com/prcore/prcore/metric"
	"github.com/prcore/prcore/natsclient"
)

// projectState is what a worker remembers about one project between
// messages: the delivered training table until training runs, then the
// trained or restored model until a streaming stop evicts it.
type projectState struct {
	table  *eventlog.Table
	params map[string]any
	model  Model
}

// Worker is the algorithm worker runtime. It consumes from the queue named
// after its algorithm key, reports presence, trains models on demand and
// serves streaming and dataset prescription requests from cached models.
// A caught fault becomes an ERROR_REPORT; the worker itself keeps serving.
type Worker struct {
	cfg     *config.Config
	client  *natsclient.Client
	alg     Algorithm
	tables  *artifact.Store
	models  *artifact.Store
	dedup   *dedup.Service
	metrics *metric.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	projects map[string]*projectState
}

// NewWorker wires a worker for the algorithm selected in configuration.
// The metrics argument may be nil for unmetered runs.
func NewWorker(cfg *config.Config, metrics *metric.Metrics, logger *slog.Logger) (*Worker, error) {
	alg, err := New(cfg.Worker.Algorithm)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "plugin.worker", "plugin", alg.Key())

	tables, err := artifact.NewStore(cfg.Artifacts.TablesDir)
	if err != nil {
		return nil, err
	}
	models, err := artifact.NewStore(cfg.Artifacts.ModelsDir)
	if err != nil {
		return nil, err
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(alg.Key()),
		natsclient.WithLogger(logger),
		natsclient.WithReconnectWait(cfg.Policy.ReconnectBackoff.Std()),
		natsclient.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	return &Worker{
		cfg:      cfg,
		client:   client,
		alg:      alg,
		tables:   tables,
		models:   models,
		metrics:  metrics,
		logger:   logger,
		projects: make(map[string]*projectState),
	}, nil
}

// Start connects, ensures the worker's queue, begins consuming and launches
// the unsolicited presence ticker. It returns once consumption is attached.
func (w *Worker) Start(ctx context.Context) error {
	d, err := dedup.NewService(ctx, w.cfg.Policy.DedupTTL.Std(), w.cfg.Policy.DedupSweep.Std())
	if err != nil {
		return err
	}
	w.dedup = d

	if err := w.client.Connect(ctx); err != nil {
		return errors.Wrap(err, "plugin", "Start", "connect")
	}
	for _, queue := range []string{w.alg.Key(), config.CoordinatorQueue} {
		if err := w.client.EnsureQueue(ctx, queue); err != nil {
			return errors.Wrap(err, "plugin", "Start", "ensure queue "+queue)
		}
	}
	if err := w.client.Consume(ctx, w.alg.Key(), w.handle); err != nil {
		return errors.Wrap(err, "plugin", "Start", "consume")
	}

	go w.reportLoop(ctx)
	w.logger.Info("plugin worker started", "queue", w.alg.Key())
	return nil
}

// Stop closes the transport and the dedup cache.
func (w *Worker) Stop() {
	w.client.Close()
	if w.dedup != nil {
		_ = w.dedup.Close()
	}
}

// reportLoop announces presence on start and then periodically, so the
// coordinator learns about the worker without having to ask first.
func (w *Worker) reportLoop(ctx context.Context) {
	interval := w.cfg.Policy.OnlineInquiryInterval.Std()
	if interval <= 0 {
		return
	}
	w.reportOnline(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reportOnline(ctx)
		}
	}
}

func (w *Worker) reportOnline(ctx context.Context) {
	report := &message.OnlineReport{
		PluginKey:   w.alg.Key(),
		Description: w.alg.Description(),
		Parameters:  w.alg.DefaultParameters(),
	}
	if err := w.publish(ctx, report, ""); err != nil {
		w.logger.Debug("online report failed", "error", err)
	}
}

// handle processes one delivery. Undecodable messages and duplicates are
// acked and dropped; the ack always happens exactly once.
func (w *Worker) handle(ctx context.Context, d *natsclient.Delivery) {
	defer func() {
		if err := d.Ack(); err != nil {
			w.logger.Warn("ack failed", "error", err)
		}
	}()

	payload, err := message.Decode(d.Data)
	if err != nil {
		w.logger.Warn("dropping undecodable message", "error", err)
		w.drop("undecodable")
		return
	}
	kind := payload.Kind()
	if w.metrics != nil {
		w.metrics.MessagesReceived.WithLabelValues(w.alg.Key(), string(kind)).Inc()
	}
	if w.dedup.CheckAndMark(d.MsgID) {
		w.logger.Debug("dropping duplicate", "msg_id", d.MsgID, "kind", kind)
		w.drop("duplicate")
		return
	}

	started := time.Now()
	w.dispatch(ctx, payload, d.CorrelationID)
	if w.metrics != nil {
		w.metrics.MessagesProcessed.WithLabelValues(w.alg.Key(), string(kind), "ok").Inc()
		w.metrics.ProcessingDuration.WithLabelValues(w.alg.Key(), string(kind)).
			Observe(time.Since(started).Seconds())
	}
}

func (w *Worker) dispatch(ctx context.Context, payload message.Payload, correlationID string) {
	switch p := payload.(type) {
	case *message.OnlineInquiry:
		w.reportOnline(ctx)

	case *message.TrainingData:
		w.handleTrainingData(ctx, p, correlationID)

	case *message.TrainingStart:
		w.handleTrainingStart(ctx, p)

	case *message.StreamingPrepare:
		w.handleStreamingPrepare(ctx, p)

	case *message.StreamingPrescriptionRequest:
		w.handleStreamingRequest(ctx, p)

	case *message.DatasetPrescriptionRequest:
		w.handleDatasetRequest(ctx, p)

	case *message.StreamingStop:
		w.evictModel(p.ProjectID)

	default:
		w.logger.Debug("ignoring message kind", "kind", payload.Kind())
	}
}

// handleTrainingData answers the offer with an applicability verdict. An
// accepted table is held in memory until TRAINING_START arrives.
func (w *Worker) handleTrainingData(ctx context.Context, p *message.TrainingData, correlationID string) {
	applicable, reason := w.alg.Applicable(p.AdditionalInfo)
	if !applicable {
		w.logger.Info("declining training data", "project_id", p.ProjectID, "reason", reason)
		w.reply(ctx, &message.DataReport{
			ProjectID: p.ProjectID, PluginKey: w.alg.Key(), Applicable: false, Detail: reason,
		}, correlationID)
		return
	}

	raw, err := w.tables.Get(p.DataArtifact)
	if err != nil {
		w.reportError(ctx, p.ProjectID, "load training data", err)
		return
	}
	table, err := eventlog.Unmarshal(raw)
	if err != nil {
		w.reportError(ctx, p.ProjectID, "decode training data", err)
		return
	}

	w.mu.Lock()
	w.projects[p.ProjectID] = &projectState{table: table, params: p.Parameters}
	w.mu.Unlock()

	info := map[string]any{"training_rows": table.Len()}
	if groups, err := table.GroupByCase(eventlog.ColumnCaseID); err == nil {
		info["training_cases"] = len(groups)
	}
	w.reply(ctx, &message.DataReport{
		ProjectID: p.ProjectID, PluginKey: w.alg.Key(), Applicable: true,
		AdditionalInfo: info,
	}, correlationID)
}

// handleTrainingStart trains on the held table, stores the model artifact
// and reports its name. The table is released once training succeeds.
func (w *Worker) handleTrainingStart(ctx context.Context, p *message.TrainingStart) {
	w.mu.Lock()
	state := w.projects[p.ProjectID]
	w.mu.Unlock()
	if state == nil || state.table == nil {
		w.reportError(ctx, p.ProjectID, "train",
			errors.New("no training data delivered for project"))
		return
	}

	started := time.Now()
	model, err := w.alg.Train(ctx, state.table, state.params)
	if err != nil {
		w.reportError(ctx, p.ProjectID, "train", err)
		return
	}
	data, err := model.Marshal()
	if err != nil {
		w.reportError(ctx, p.ProjectID, "encode model", err)
		return
	}
	name, err := w.models.Put(data)
	if err != nil {
		w.reportError(ctx, p.ProjectID, "store model", err)
		return
	}

	w.mu.Lock()
	state.model = model
	state.table = nil
	w.mu.Unlock()

	w.logger.Info("model trained", "project_id", p.ProjectID,
		"artifact", name, "elapsed", time.Since(started))
	w.reply(ctx, &message.ModelName{
		ProjectID: p.ProjectID, PluginKey: w.alg.Key(), Name: name,
	}, "")
}

// handleStreamingPrepare restores the named model and confirms readiness.
func (w *Worker) handleStreamingPrepare(ctx context.Context, p *message.StreamingPrepare) {
	raw, err := w.models.Get(p.ModelName)
	if err != nil {
		w.reportError(ctx, p.ProjectID, "load model", err)
		return
	}
	model, err := w.alg.Restore(raw)
	if err != nil {
		w.reportError(ctx, p.ProjectID, "restore model", err)
		return
	}

	w.mu.Lock()
	state := w.projects[p.ProjectID]
	if state == nil {
		state = &projectState{}
		w.projects[p.ProjectID] = state
	}
	state.model = model
	w.mu.Unlock()

	w.reply(ctx, &message.StreamingReady{ProjectID: p.ProjectID, PluginKey: w.alg.Key()}, "")
}

// handleStreamingRequest prescribes for one live event. A worker without a
// loaded model replies with a nil prescription rather than staying silent.
func (w *Worker) handleStreamingRequest(ctx context.Context, p *message.StreamingPrescriptionRequest) {
	result := &message.StreamingPrescriptionResult{
		ProjectID: p.ProjectID,
		PluginKey: w.alg.Key(),
		EventID:   p.EventID,
	}

	if model := w.model(p.ProjectID); model != nil && p.Prefix != nil {
		prescription, err := model.Prescribe(p.CaseID, p.Prefix.Rows)
		if err != nil {
			w.logger.Warn("streaming prescribe failed",
				"project_id", p.ProjectID, "event_id", p.EventID, "error", err)
		} else {
			result.Prescription = prescription
		}
	}

	w.reply(ctx, result, p.EventID)
}

// handleDatasetRequest prescribes for every case of a dataset artifact. Any
// failure still produces an explicit not-applicable reply so the
// coordinator's completion counting keeps moving.
func (w *Worker) handleDatasetRequest(ctx context.Context, p *message.DatasetPrescriptionRequest) {
	result := &message.DatasetPrescriptionResult{
		ProjectID: p.ProjectID,
		PluginKey: w.alg.Key(),
		ResultKey: p.ResultKey,
	}

	model := w.model(p.ProjectID)
	if model == nil {
		w.logger.Warn("dataset request without model", "project_id", p.ProjectID)
		w.reply(ctx, result, p.ResultKey)
		return
	}
	groups, err := w.loadCases(p.DataArtifact)
	if err != nil {
		w.logger.Error("dataset request failed",
			"project_id", p.ProjectID, "artifact", p.DataArtifact, "error", err)
		w.reply(ctx, result, p.ResultKey)
		return
	}

	result.Applicable = true
	result.Results = make(map[string]message.Prescription)
	for _, g := range groups {
		prescription, err := model.Prescribe(g.CaseID, g.Rows)
		if err != nil {
			w.logger.Warn("case prescribe failed",
				"project_id", p.ProjectID, "case_id", g.CaseID, "error", err)
			continue
		}
		if prescription != nil {
			result.Results[g.CaseID] = *prescription
		}
	}

	w.reply(ctx, result, p.ResultKey)
}

func (w *Worker) loadCases(name string) ([]eventlog.CaseGroup, error) {
	raw, err := w.tables.Get(name)
	if err != nil {
		return nil, err
	}
	table, err := eventlog.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return table.GroupByCase(eventlog.ColumnCaseID)
}

func (w *Worker) model(projectID string) Model {
	w.mu.Lock()
	defer w.mu.Unlock()
	if state := w.projects[projectID]; state != nil {
		return state.model
	}
	return nil
}

// evictModel drops cached state after a streaming stop. The model artifact
// stays on disk; a later STREAMING_PREPARE restores it.
func (w *Worker) evictModel(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if state := w.projects[projectID]; state != nil {
		state.model = nil
	}
}

// reportError sends a caught fault to the coordinator. The owning plugin
// moves to ERROR there; this process keeps serving other projects.
func (w *Worker) reportError(ctx context.Context, projectID, stage string, err error) {
	w.logger.Error("plugin fault", "project_id", projectID, "stage", stage, "error", err)
	w.reply(ctx, &message.ErrorReport{
		ProjectID: projectID,
		PluginKey: w.alg.Key(),
		Detail:    stage + ": " + err.Error(),
	}, "")
}

// reply publishes to the coordinator queue, logging instead of propagating
// failures: the broker redelivers the triggering message if the ack is the
// problem, and a lost reply must not wedge the handler.
func (w *Worker) reply(ctx context.Context, payload message.Payload, correlationID string) {
	if err := w.publish(ctx, payload, correlationID); err != nil {
		w.logger.Error("reply failed", "kind", payload.Kind(), "error", err)
	}
}

func (w *Worker) publish(ctx context.Context, payload message.Payload, correlationID string) error {
	raw, err := message.Encode(payload)
	if err != nil {
		return err
	}
	var opts []natsclient.PublishOption
	if correlationID != "" {
		opts = append(opts, natsclient.WithCorrelationID(correlationID))
	}
	if err := w.client.Publish(ctx, config.CoordinatorQueue, raw, opts...); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.MessagesPublished.WithLabelValues(w.alg.Key(), config.CoordinatorQueue).Inc()
	}
	return nil
}

func (w *Worker) drop(reason string) {
	if w.metrics != nil {
		w.metrics.MessagesDropped.WithLabelValues(w.alg.Key(), reason).Inc()
	}
}
