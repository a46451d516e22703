package plugin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/message"
)

func init() {
	Register("knn", func() Algorithm { return &frequencyAlgorithm{} })
}

const defaultMinSupport = 3

// frequencyAlgorithm recommends the next activity whose historical
// transitions led to positive outcomes most often. It is the nearest-
// neighbour style baseline every deployment starts with.
type frequencyAlgorithm struct{}

func (a *frequencyAlgorithm) Key() string { return "knn" }

func (a *frequencyAlgorithm) Description() string {
	return "next activity recommendation from outcome-weighted transition frequencies"
}

func (a *frequencyAlgorithm) DefaultParameters() map[string]any {
	return map[string]any{"min_support": defaultMinSupport}
}

func (a *frequencyAlgorithm) Applicable(info map[string]any) (bool, string) {
	if !infoFlag(info, "defined_outcome") {
		return false, "project defines no outcome"
	}
	return true, ""
}

func (a *frequencyAlgorithm) Train(_ context.Context, table *eventlog.Table, params map[string]any) (Model, error) {
	groups, err := table.GroupByCase(eventlog.ColumnCaseID)
	if err != nil {
		return nil, errors.WrapInvalid(err, "frequencyAlgorithm", "Train", "group cases")
	}

	m := &frequencyModel{
		MinSupport:  intParam(params, "min_support", defaultMinSupport),
		Transitions: make(map[string]map[string]int),
		Positives:   make(map[string]map[string]int),
	}
	for _, g := range groups {
		positive := casePositive(g.Rows, eventlog.ColumnOutcome)
		for i := 0; i+1 < len(g.Rows); i++ {
			from := cellString(g.Rows[i][eventlog.ColumnActivity])
			to := cellString(g.Rows[i+1][eventlog.ColumnActivity])
			if from == "" || to == "" {
				continue
			}
			bump(m.Transitions, from, to)
			if positive {
				bump(m.Positives, from, to)
			}
		}
	}
	return m, nil
}

func (a *frequencyAlgorithm) Restore(data []byte) (Model, error) {
	var m frequencyModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(err, "frequencyAlgorithm", "Restore", "decode model")
	}
	return &m, nil
}

// frequencyModel holds outcome-weighted transition counts. All state is
// written once in Train, so concurrent Prescribe calls need no lock.
type frequencyModel struct {
	MinSupport  int                       `json:"min_support"`
	Transitions map[string]map[string]int `json:"transitions"`
	Positives   map[string]map[string]int `json:"positives"`
}

func (m *frequencyModel) Prescribe(_ string, prefix []eventlog.Row) (*message.Prescription, error) {
	if len(prefix) == 0 {
		return nil, nil
	}
	last := cellString(prefix[len(prefix)-1][eventlog.ColumnActivity])
	candidates := m.Transitions[last]

	var (
		best     string
		bestRate float64
		bestSeen int
	)
	for next, seen := range candidates {
		if seen < m.MinSupport {
			continue
		}
		rate := float64(m.Positives[last][next]) / float64(seen)
		better := rate > bestRate ||
			(rate == bestRate && seen > bestSeen) ||
			(rate == bestRate && seen == bestSeen && (best == "" || next < best))
		if better {
			best, bestRate, bestSeen = next, rate, seen
		}
	}
	if best == "" {
		return nil, nil
	}
	return &message.Prescription{
		Date:   time.Now().UTC(),
		Type:   "NEXT_ACTIVITY",
		Plugin: "knn",
		Output: map[string]any{
			"recommended_activity": best,
			"support":              bestSeen,
			"positive_rate":        bestRate,
		},
	}, nil
}

func (m *frequencyModel) Marshal() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(err, "frequencyModel", "Marshal", "encode model")
	}
	return raw, nil
}

func bump(counts map[string]map[string]int, from, to string) {
	if counts[from] == nil {
		counts[from] = make(map[string]int)
	}
	counts[from][to]++
}
