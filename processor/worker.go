package processor

import (
	"context"
	"log/slog"
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

// Worker is the stateless transformation worker: it consumes PROCESS_REQUEST
// from its own queue, runs the engine, stores the result artifact and replies
// PROCESS_RESULT to the coordinator queue. An engine fault is caught and
// reported as an empty result, never propagated; the worker keeps serving.
type Worker struct {
	cfg     *config.Config
	client  *natsclient.Client
	engine  *Engine
	store   *artifact.Store
	dedup   *dedup.Service
	metrics *metric.Metrics
	logger  *slog.Logger
}

// NewWorker wires a worker from configuration. The metrics argument may be
// nil for unmetered runs.
func NewWorker(cfg *config.Config, metrics *metric.Metrics, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "processor.worker", "worker_id", cfg.Worker.ID)

	store, err := artifact.NewStore(cfg.Artifacts.TablesDir)
	if err != nil {
		return nil, err
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(cfg.Worker.ID),
		natsclient.WithLogger(logger),
		natsclient.WithReconnectWait(cfg.Policy.ReconnectBackoff.Std()),
		natsclient.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	return &Worker{
		cfg:     cfg,
		client:  client,
		engine:  NewEngine(0, logger),
		store:   store,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Start connects to the broker, ensures the worker's queue exists and begins
// consuming. It returns once consumption is attached.
func (w *Worker) Start(ctx context.Context) error {
	d, err := dedup.NewService(ctx, w.cfg.Policy.DedupTTL.Std(), w.cfg.Policy.DedupSweep.Std())
	if err != nil {
		return err
	}
	w.dedup = d

	if err := w.client.Connect(ctx); err != nil {
		return errors.Wrap(err, "processor", "Start", "connect")
	}
	for _, queue := range []string{w.cfg.Worker.ID, config.CoordinatorQueue} {
		if err := w.client.EnsureQueue(ctx, queue); err != nil {
			return errors.Wrap(err, "processor", "Start", "ensure queue "+queue)
		}
	}
	if err := w.client.Consume(ctx, w.cfg.Worker.ID, w.handle); err != nil {
		return errors.Wrap(err, "processor", "Start", "consume")
	}
	w.logger.Info("processor worker started", "queue", w.cfg.Worker.ID)
	return nil
}

// Stop closes the transport and the dedup cache.
func (w *Worker) Stop() {
	w.client.Close()
	if w.dedup != nil {
		_ = w.dedup.Close()
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
		w.metrics.MessagesReceived.WithLabelValues(w.cfg.Worker.ID, string(kind)).Inc()
	}
	if w.dedup.CheckAndMark(d.MsgID) {
		w.logger.Debug("dropping duplicate", "msg_id", d.MsgID, "kind", kind)
		w.drop("duplicate")
		return
	}

	req, ok := payload.(*message.ProcessRequest)
	if !ok {
		w.logger.Debug("ignoring message kind", "kind", kind)
		return
	}

	started := time.Now()
	result := w.process(ctx, req)
	status := "ok"
	if result.ResultArtifact == "" {
		status = "failed"
	}
	if w.metrics != nil {
		w.metrics.MessagesProcessed.WithLabelValues(w.cfg.Worker.ID, string(kind), status).Inc()
		w.metrics.ProcessingDuration.WithLabelValues(w.cfg.Worker.ID, string(kind)).
			Observe(time.Since(started).Seconds())
	}

	raw, err := message.Encode(result)
	if err != nil {
		w.logger.Error("encode result failed", "error", err)
		return
	}
	if err := w.client.Publish(ctx, config.CoordinatorQueue, raw,
		natsclient.WithCorrelationID(req.RequestKey)); err != nil {
		w.logger.Error("publish result failed", "request_key", req.RequestKey, "error", err)
		return
	}
	if w.metrics != nil {
		w.metrics.MessagesPublished.WithLabelValues(w.cfg.Worker.ID, config.CoordinatorQueue).Inc()
	}
}

// process runs the engine on the request's raw artifact. Every failure path
// returns a result with an empty artifact and the reason in Detail.
func (w *Worker) process(ctx context.Context, req *message.ProcessRequest) *message.ProcessResult {
	result := &message.ProcessResult{
		ProjectID:  req.ProjectID,
		RequestKey: req.RequestKey,
	}

	fail := func(stage string, err error) *message.ProcessResult {
		w.logger.Error("process request failed",
			"project_id", req.ProjectID, "request_key", req.RequestKey,
			"stage", stage, "error", err)
		result.Detail = stage + ": " + err.Error()
		return result
	}

	raw, err := w.store.Get(req.RawArtifact)
	if err != nil {
		return fail("load artifact", err)
	}
	table, err := eventlog.Unmarshal(raw)
	if err != nil {
		return fail("decode table", err)
	}
	cleaned, err := w.engine.Transform(ctx, table, &req.Definition)
	if err != nil {
		return fail("transform", err)
	}
	data, err := cleaned.Marshal()
	if err != nil {
		return fail("encode table", err)
	}
	name, err := w.store.Put(data)
	if err != nil {
		return fail("store artifact", err)
	}

	result.ResultArtifact = name
	w.logger.Info("process request served",
		"project_id", req.ProjectID, "request_key", req.RequestKey,
		"rows", cleaned.Len(), "artifact", name)
	return result
}

func (w *Worker) drop(reason string) {
	if w.metrics != nil {
		w.metrics.MessagesDropped.WithLabelValues(w.cfg.Worker.ID, reason).Inc()
	}
}
