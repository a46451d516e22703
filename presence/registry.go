// Package presence tracks which plugins are currently reachable. Plugins
// announce themselves with ONLINE_REPORT messages, unsolicited and in answer
// to the coordinator's periodic ONLINE_INQUIRY broadcast; the registry keeps
// the declared capabilities and last-seen time and derives the active set by
// a staleness threshold.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/prcore/prcore/metric"
)

// Record is one plugin's liveness fact.
type Record struct {
	PluginKey   string
	Description string
	Parameters  map[string]any
	LastOnline  time.Time
}

// Registry owns the presence records behind a single lock.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]Record
	staleness time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a registry.
type Option func(*Registry)

// WithMetricsRegistry exposes the active plugin count as a gauge.
func WithMetricsRegistry(reg *metric.MetricsRegistry) Option {
	return func(r *Registry) {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "prcore",
			Subsystem: "presence",
			Name:      "active_plugins",
			Help:      "Plugins reachable within the staleness threshold",
		}, func() float64 {
			return float64(len(r.Active()))
		})
		// Duplicate registration leaves the registry unmetered, not broken.
		_ = reg.Register("presence", "active_plugins", gauge)
	}
}

// withClock overrides time for tests.
func withClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry with the given staleness threshold.
func NewRegistry(staleness time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		records:   make(map[string]Record),
		staleness: staleness,
		logger:    logger.With("component", "presence"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report records a plugin announcement, refreshing its last-seen time.
func (r *Registry) Report(key, description string, parameters map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.records[key]; !known {
		r.logger.Info("plugin online", "plugin", key)
	}
	r.records[key] = Record{
		PluginKey:   key,
		Description: description,
		Parameters:  parameters,
		LastOnline:  r.now(),
	}
}

// Get returns the record for a plugin, stale or not.
func (r *Registry) Get(key string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	return rec, ok
}

// IsActive reports whether the plugin announced itself recently enough.
func (r *Registry) IsActive(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	return ok && r.now().Sub(rec.LastOnline) < r.staleness
}

// Active returns the non-stale records sorted by plugin key.
func (r *Registry) Active() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-r.staleness)
	var out []Record
	for _, rec := range r.records {
		if rec.LastOnline.After(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PluginKey < out[j].PluginKey })
	return out
}

// Keys returns every known plugin key, stale records included. The
// coordinator's periodic inquiry broadcast targets these queues.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Forget drops a plugin's record entirely.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
}
