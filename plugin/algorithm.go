// Package plugin is the runtime shared by every algorithm worker: it owns
// the transport loop, presence reporting, training and prescription
// handlers, and a registry of the algorithm implementations a worker can be
// configured to run.
package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/message"
)

// Model is trained algorithm state. Implementations must be safe for
// concurrent Prescribe calls; the worker serves streaming and dataset
// requests from the same cached model.
type Model interface {
	// Prescribe produces a prescription for one case given the rows
	// observed so far. A nil prescription means the model has nothing to
	// say for this prefix.
	Prescribe(caseID string, prefix []eventlog.Row) (*message.Prescription, error)
	// Marshal serializes the model for artifact storage. The bytes carry no
	// identifying metadata; the artifact name is the only reference.
	Marshal() ([]byte, error)
}

// Algorithm builds and restores models for one prescriptive technique.
type Algorithm interface {
	// Key is the stable identity the worker reports presence under.
	Key() string
	// Description is the human-readable capability line for presence
	// reports.
	Description() string
	// DefaultParameters advertises the tunable knobs and their defaults.
	DefaultParameters() map[string]any
	// Applicable decides whether the algorithm can work with a project,
	// given the offer's additional info (defined_outcome,
	// defined_treatment). The string is the reason when not applicable.
	Applicable(info map[string]any) (bool, string)
	// Train fits a model on a processed training table.
	Train(ctx context.Context, table *eventlog.Table, params map[string]any) (Model, error)
	// Restore rebuilds a model from Marshal output.
	Restore(data []byte) (Model, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Algorithm)
)

// Register makes an algorithm constructible by key. Built-in algorithms
// register from init; a later registration for the same key wins, which is
// how an embedding application overrides a built-in.
func Register(key string, factory func() Algorithm) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = factory
}

// New constructs the algorithm registered under key.
func New(key string) (Algorithm, error) {
	registryMu.RLock()
	factory, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownAlgorithm, "plugin", "New", "key "+key)
	}
	return factory(), nil
}

// Keys lists the registered algorithm keys, sorted.
func Keys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// infoFlag reads a boolean flag out of an offer's additional info. Absent or
// non-boolean values read as false.
func infoFlag(info map[string]any, key string) bool {
	v, ok := info[key].(bool)
	return ok && v
}
