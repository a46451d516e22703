// Package coordinator is the orchestration hub: it consumes every worker
// reply from the fixed coordinator queue, keeps the presence, lifecycle,
// pending-request and dedup registries, and drives pre-processing, training
// and prescription fan-outs.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/prcore/prcore/artifact"
	"github.com/prcore/prcore/config"
	"github.com/prcore/prcore/dedup"
	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/lifecycle"
	"github.com/prcore/prcore/message"
	"github.com/prcore/prcore/metric"
	"github.com/prcore/prcore/natsclient"
	"github.com/prcore/prcore/presence"
	"github.com/prcore/prcore/stream"
)

// watchdogInterval is how often idle streaming sessions are checked.
const watchdogInterval = 30 * time.Second

// Service is the coordinator process core.
type Service struct {
	cfg      *config.Config
	client   *natsclient.Client
	dedup    *dedup.Service
	presence *presence.Registry
	projects *lifecycle.Registry
	futures  *processFutures
	bulk     *bulkRequests
	streams  *stream.Manager
	tables   *artifact.Store
	metrics  *metric.Metrics
	logger   *slog.Logger

	runCtx context.Context
	cancel context.CancelFunc
}

// NewService wires the coordinator from configuration. metrics may be nil.
func NewService(cfg *config.Config, metrics *metric.Metrics, registry *metric.MetricsRegistry, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "coordinator")

	tables, err := artifact.NewStore(cfg.Artifacts.TablesDir)
	if err != nil {
		return nil, err
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(config.CoordinatorQueue),
		natsclient.WithLogger(logger),
		natsclient.WithReconnectWait(cfg.Policy.ReconnectBackoff.Std()),
		natsclient.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	var presenceOpts []presence.Option
	if registry != nil {
		presenceOpts = append(presenceOpts, presence.WithMetricsRegistry(registry))
	}

	s := &Service{
		cfg:      cfg,
		client:   client,
		presence: presence.NewRegistry(cfg.Policy.PresenceStaleness.Std(), logger, presenceOpts...),
		projects: lifecycle.NewRegistry(logger),
		tables:   tables,
		metrics:  metrics,
		logger:   logger,
	}
	s.streams = stream.NewManager(stream.Config{
		Interval:      cfg.Policy.StreamInterval.Std(),
		SimulationCap: cfg.Policy.SimulationCap,
		IdleRead:      cfg.Policy.StreamIdleRead.Std(),
		IdleUnread:    cfg.Policy.StreamIdleUnread.Std(),
	}, s.emitStreamingEvent, s.notifyStreamingStop, logger)
	return s, nil
}

// Start connects, ensures the coordinator and processor queues, attaches the
// dispatch loop and launches the background tickers.
func (s *Service) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)

	var err error
	if s.dedup, err = dedup.NewService(s.runCtx, s.cfg.Policy.DedupTTL.Std(), s.cfg.Policy.DedupSweep.Std()); err != nil {
		return err
	}
	if s.futures, err = newProcessFutures(s.runCtx, s.cfg.Policy.PendingTTL.Std(), s.cfg.Policy.PendingSweep.Std()); err != nil {
		return err
	}
	if s.bulk, err = newBulkRequests(s.runCtx, s.cfg.Policy.PendingTTL.Std(), s.cfg.Policy.PendingSweep.Std(), s.logger); err != nil {
		return err
	}

	if err := s.client.Connect(s.runCtx); err != nil {
		return errors.Wrap(err, "coordinator", "Start", "connect")
	}
	for _, queue := range []string{config.CoordinatorQueue, s.cfg.Worker.ProcessorQueue} {
		if err := s.client.EnsureQueue(s.runCtx, queue); err != nil {
			return errors.Wrap(err, "coordinator", "Start", "ensure queue "+queue)
		}
	}
	if err := s.client.Consume(s.runCtx, config.CoordinatorQueue, s.handle); err != nil {
		return errors.Wrap(err, "coordinator", "Start", "consume")
	}

	go s.streams.Watch(s.runCtx, watchdogInterval)
	go s.inquiryLoop(s.runCtx)

	s.logger.Info("coordinator started")
	return nil
}

// Stop shuts down sessions, transport and registries.
func (s *Service) Stop(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.streams.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.client.Close()
	if s.dedup != nil {
		_ = s.dedup.Close()
	}
	if s.futures != nil {
		_ = s.futures.close()
	}
	if s.bulk != nil {
		_ = s.bulk.close()
	}
	s.logger.Info("coordinator stopped")
}

// Projects exposes the lifecycle registry to the API layer.
func (s *Service) Projects() *lifecycle.Registry {
	return s.projects
}

// Presence exposes the presence registry to the API layer.
func (s *Service) Presence() *presence.Registry {
	return s.presence
}

// Streams exposes the session manager to the API layer.
func (s *Service) Streams() *stream.Manager {
	return s.streams
}

// inquiryLoop periodically asks every known plugin to report presence.
func (s *Service) inquiryLoop(ctx context.Context) {
	interval := s.cfg.Policy.OnlineInquiryInterval.Std()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range s.presence.Keys() {
				if err := s.publish(ctx, key, &message.OnlineInquiry{}, ""); err != nil {
					s.logger.Debug("online inquiry failed", "plugin", key, "error", err)
				}
			}
		}
	}
}

// handle is the dispatch loop for the coordinator queue. Every delivery is
// acked exactly once; undecodable and duplicate messages are dropped.
func (s *Service) handle(ctx context.Context, d *natsclient.Delivery) {
	defer func() {
		if err := d.Ack(); err != nil {
			s.logger.Warn("ack failed", "error", err)
		}
	}()

	payload, err := message.Decode(d.Data)
	if err != nil {
		s.logger.Warn("dropping undecodable message", "error", err)
		s.drop("undecodable")
		return
	}
	kind := payload.Kind()
	if s.metrics != nil {
		s.metrics.MessagesReceived.WithLabelValues(config.CoordinatorQueue, string(kind)).Inc()
	}
	if s.dedup.CheckAndMark(d.MsgID) {
		s.logger.Debug("dropping duplicate", "msg_id", d.MsgID, "kind", kind)
		s.drop("duplicate")
		return
	}

	started := time.Now()
	s.dispatch(ctx, payload)
	if s.metrics != nil {
		s.metrics.MessagesProcessed.WithLabelValues(config.CoordinatorQueue, string(kind), "ok").Inc()
		s.metrics.ProcessingDuration.WithLabelValues(config.CoordinatorQueue, string(kind)).
			Observe(time.Since(started).Seconds())
	}
}

func (s *Service) dispatch(ctx context.Context, payload message.Payload) {
	switch p := payload.(type) {
	case *message.OnlineReport:
		s.presence.Report(p.PluginKey, p.Description, p.Parameters)

	case *message.DataReport:
		s.handleDataReport(ctx, p)

	case *message.ErrorReport:
		if err := s.projects.SetPluginError(p.ProjectID, p.PluginKey, p.Detail); err != nil {
			s.logger.Warn("error report for unknown plugin",
				"project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
		}

	case *message.ModelName:
		s.handleModelName(p)

	case *message.StreamingReady:
		if err := s.projects.SetPluginStatus(p.ProjectID, p.PluginKey, lifecycle.StatusStreaming); err != nil {
			s.logger.Warn("streaming ready rejected",
				"project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
		}

	case *message.ProcessResult:
		if !s.futures.resolve(p) {
			s.logger.Warn("process result for unknown request", "request_key", p.RequestKey)
		}

	case *message.DatasetPrescriptionResult:
		s.handleDatasetResult(p)

	case *message.StreamingPrescriptionResult:
		s.streams.Push(p.ProjectID, p)

	default:
		s.logger.Debug("ignoring message kind", "kind", payload.Kind())
	}
}

// handleDataReport advances a plugin that accepted training data, or
// disables one that declared itself inapplicable. Applicable=false is a
// normal verdict, not a fault.
func (s *Service) handleDataReport(ctx context.Context, p *message.DataReport) {
	if !p.Applicable {
		s.logger.Info("plugin not applicable, disabling",
			"project_id", p.ProjectID, "plugin", p.PluginKey, "detail", p.Detail)
		if err := s.projects.DisablePlugin(p.ProjectID, p.PluginKey); err != nil {
			s.logger.Warn("disable failed", "project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
		}
		return
	}

	if len(p.AdditionalInfo) > 0 {
		if err := s.projects.SetAdditionalInfo(p.ProjectID, p.PluginKey, p.AdditionalInfo); err != nil {
			s.logger.Warn("plugin info rejected",
				"project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
		}
	}
	if err := s.projects.SetPluginStatus(p.ProjectID, p.PluginKey, lifecycle.StatusTraining); err != nil {
		s.logger.Warn("training transition rejected",
			"project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
		return
	}
	if err := s.publish(ctx, p.PluginKey, &message.TrainingStart{ProjectID: p.ProjectID}, ""); err != nil {
		s.logger.Error("training start failed", "project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
	}
}

func (s *Service) handleModelName(p *message.ModelName) {
	if err := s.projects.SetModelName(p.ProjectID, p.PluginKey, p.Name); err != nil {
		s.logger.Warn("model name for unknown plugin",
			"project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
		return
	}
	if err := s.projects.SetPluginStatus(p.ProjectID, p.PluginKey, lifecycle.StatusTrained); err != nil {
		s.logger.Warn("trained transition rejected",
			"project_id", p.ProjectID, "plugin", p.PluginKey, "error", err)
	}
}

func (s *Service) handleDatasetResult(p *message.DatasetPrescriptionResult) {
	complete, err := s.bulk.add(p)
	if err != nil {
		s.logger.Warn("dataset result for unknown request",
			"result_key", p.ResultKey, "plugin", p.PluginKey, "error", err)
		return
	}
	if complete {
		s.logger.Info("dataset prescription complete",
			"project_id", p.ProjectID, "result_key", p.ResultKey)
	}
}

// publish encodes and sends one payload to a worker queue.
func (s *Service) publish(ctx context.Context, queue string, payload message.Payload, correlationID string) error {
	raw, err := message.Encode(payload)
	if err != nil {
		return err
	}
	var opts []natsclient.PublishOption
	if correlationID != "" {
		opts = append(opts, natsclient.WithCorrelationID(correlationID))
	}
	if err := s.client.Publish(ctx, queue, raw, opts...); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.MessagesPublished.WithLabelValues(config.CoordinatorQueue, queue).Inc()
	}
	return nil
}

func (s *Service) drop(reason string) {
	if s.metrics != nil {
		s.metrics.MessagesDropped.WithLabelValues(config.CoordinatorQueue, reason).Inc()
	}
}
