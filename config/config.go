// Package config holds typed configuration for prcore processes. Files may be
// JSON or YAML; a handful of environment variables override the transport
// settings for container deployments. All policy timeouts from the
// orchestration design live here as defaults so operators can tune them
// without recompiling.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prcore/prcore/errors"
)

// CoordinatorQueue is the fixed queue every worker publishes replies to.
const CoordinatorQueue = "coordinator"

// DefaultProcessorQueue is the default identity of the transformation worker.
const DefaultProcessorQueue = "processor"

// Config represents the complete configuration for one prcore process.
type Config struct {
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	Artifacts ArtifactsConfig `json:"artifacts" yaml:"artifacts"`
	Policy    PolicyConfig    `json:"policy" yaml:"policy"`
	Worker    WorkerConfig    `json:"worker" yaml:"worker"`
	LogLevel  string          `json:"log_level" yaml:"log_level"`
}

// NATSConfig holds transport connection settings.
type NATSConfig struct {
	URL string `json:"url" yaml:"url"`
}

// ArtifactsConfig locates on-disk artifact directories.
type ArtifactsConfig struct {
	// ModelsDir holds serialized model state, uuid filenames.
	ModelsDir string `json:"models_dir" yaml:"models_dir"`
	// TablesDir holds intermediate event-log tables exchanged with the
	// transformation engine.
	TablesDir string `json:"tables_dir" yaml:"tables_dir"`
}

// WorkerConfig identifies a worker process.
type WorkerConfig struct {
	// ID is the stable worker identity; each worker consumes from the queue
	// named after it.
	ID string `json:"id" yaml:"id"`
	// Algorithm selects the registered algorithm implementation for plugin
	// workers.
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	// ProcessorQueue is where the coordinator sends PROCESS_REQUESTs.
	ProcessorQueue string `json:"processor_queue" yaml:"processor_queue"`
}

// PolicyConfig collects the policy timeouts of the orchestration layer.
// These are application policies, not network timeouts.
type PolicyConfig struct {
	// PresenceStaleness: a plugin is active iff now-last_online is below this.
	PresenceStaleness Duration `json:"presence_staleness" yaml:"presence_staleness"`
	// DedupTTL: how long processed message ids are remembered.
	DedupTTL Duration `json:"dedup_ttl" yaml:"dedup_ttl"`
	// DedupSweep: interval of the idempotency cache sweep.
	DedupSweep Duration `json:"dedup_sweep" yaml:"dedup_sweep"`
	// PendingTTL: lifetime of an abandoned pending request.
	PendingTTL Duration `json:"pending_ttl" yaml:"pending_ttl"`
	// PendingSweep: interval of the pending request sweep.
	PendingSweep Duration `json:"pending_sweep" yaml:"pending_sweep"`
	// StreamIdleRead: grace for a session whose feed was read at least once.
	StreamIdleRead Duration `json:"stream_idle_read" yaml:"stream_idle_read"`
	// StreamIdleUnread: grace for a session whose feed was never read.
	StreamIdleUnread Duration `json:"stream_idle_unread" yaml:"stream_idle_unread"`
	// ReconnectBackoff: fixed transport reconnect delay.
	ReconnectBackoff Duration `json:"reconnect_backoff" yaml:"reconnect_backoff"`
	// PreprocessTimeout: upper bound on the pre-processing wait.
	PreprocessTimeout Duration `json:"preprocess_timeout" yaml:"preprocess_timeout"`
	// OnlineInquiryInterval: how often the coordinator broadcasts presence
	// inquiries.
	OnlineInquiryInterval Duration `json:"online_inquiry_interval" yaml:"online_inquiry_interval"`
	// StreamInterval: delay between emitted events in a running stream.
	StreamInterval Duration `json:"stream_interval" yaml:"stream_interval"`
	// SimulationCap: hard iteration cap for simulations.
	SimulationCap int `json:"simulation_cap" yaml:"simulation_cap"`
}

// Default returns the configuration defaults for a prcore process.
func Default() *Config {
	return &Config{
		NATS:     NATSConfig{URL: "nats://127.0.0.1:4222"},
		LogLevel: "info",
		Worker:   WorkerConfig{ProcessorQueue: DefaultProcessorQueue},
		Artifacts: ArtifactsConfig{
			ModelsDir: "data/models",
			TablesDir: "data/tables",
		},
		Policy: PolicyConfig{
			PresenceStaleness:     Duration(15 * time.Minute),
			DedupTTL:              Duration(15 * time.Minute),
			DedupSweep:            Duration(5 * time.Minute),
			PendingTTL:            Duration(30 * time.Minute),
			PendingSweep:          Duration(5 * time.Minute),
			StreamIdleRead:        Duration(60 * time.Second),
			StreamIdleUnread:      Duration(5 * time.Minute),
			ReconnectBackoff:      Duration(5 * time.Second),
			PreprocessTimeout:     Duration(30 * time.Minute),
			OnlineInquiryInterval: Duration(5 * time.Minute),
			StreamInterval:        Duration(time.Second),
			SimulationCap:         100000,
		},
	}
}

// Load reads configuration from path, layering file values over defaults and
// environment overrides over both. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read file")
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, errors.WrapInvalid(err, "config", "Load", "parse yaml")
			}
		case ".json":
			if err := json.Unmarshal(raw, cfg); err != nil {
				return nil, errors.WrapInvalid(err, "config", "Load", "parse json")
			}
		default:
			return nil, errors.WrapInvalid(
				fmt.Errorf("unsupported config extension %q", filepath.Ext(path)),
				"config", "Load", "detect format")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PRCORE_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("PRCORE_WORKER_ID"); v != "" {
		c.Worker.ID = v
	}
	if v := os.Getenv("PRCORE_ALGORITHM"); v != "" {
		c.Worker.Algorithm = v
	}
	if v := os.Getenv("PRCORE_MODELS_DIR"); v != "" {
		c.Artifacts.ModelsDir = v
	}
	if v := os.Getenv("PRCORE_TABLES_DIR"); v != "" {
		c.Artifacts.TablesDir = v
	}
	if v := os.Getenv("PRCORE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.New("nats.url is required"), "config", "Validate", "check nats")
	}
	for name, d := range map[string]Duration{
		"presence_staleness": c.Policy.PresenceStaleness,
		"dedup_ttl":          c.Policy.DedupTTL,
		"pending_ttl":        c.Policy.PendingTTL,
		"reconnect_backoff":  c.Policy.ReconnectBackoff,
		"preprocess_timeout": c.Policy.PreprocessTimeout,
	} {
		if d <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("policy.%s must be positive", name),
				"config", "Validate", "check policy")
		}
	}
	return nil
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a copy of the current configuration.
func (s *SafeConfig) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.config
}

// Update replaces the current configuration after validating it.
func (s *SafeConfig) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return nil
}
