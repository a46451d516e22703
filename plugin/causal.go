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
	Register("causal", func() Algorithm { return &causalAlgorithm{} })
}

// causalAlgorithm estimates the average treatment effect on the outcome and
// prescribes applying the treatment when the estimated uplift clears a
// threshold. Cases are the unit of analysis: a case counts as treated or
// positive when any of its rows carries the label.
type causalAlgorithm struct{}

func (a *causalAlgorithm) Key() string { return "causal" }

func (a *causalAlgorithm) Description() string {
	return "treatment recommendation from estimated outcome uplift"
}

func (a *causalAlgorithm) DefaultParameters() map[string]any {
	return map[string]any{"min_uplift": 0.0}
}

func (a *causalAlgorithm) Applicable(info map[string]any) (bool, string) {
	if !infoFlag(info, "defined_outcome") {
		return false, "project defines no outcome"
	}
	if !infoFlag(info, "defined_treatment") {
		return false, "project defines no treatment"
	}
	return true, ""
}

func (a *causalAlgorithm) Train(_ context.Context, table *eventlog.Table, params map[string]any) (Model, error) {
	groups, err := table.GroupByCase(eventlog.ColumnCaseID)
	if err != nil {
		return nil, errors.WrapInvalid(err, "causalAlgorithm", "Train", "group cases")
	}

	var treatedPos, treatedN, controlPos, controlN int
	resources := make(map[string]int)
	for _, g := range groups {
		positive := casePositive(g.Rows, eventlog.ColumnOutcome)
		if casePositive(g.Rows, eventlog.ColumnTreatment) {
			treatedN++
			if positive {
				treatedPos++
			}
			if r := caseTreatmentResource(g.Rows); r != "" {
				resources[r]++
			}
			continue
		}
		controlN++
		if positive {
			controlPos++
		}
	}
	if treatedN == 0 || controlN == 0 {
		return nil, errors.WrapInvalid(errors.New("training data has no treatment contrast"),
			"causalAlgorithm", "Train", "estimate uplift")
	}

	return &causalModel{
		MinUplift:    floatParam(params, "min_uplift", 0),
		Uplift:       rate(treatedPos, treatedN) - rate(controlPos, controlN),
		TreatedCases: treatedN,
		ControlCases: controlN,
		TopResource:  topKey(resources),
	}, nil
}

func (a *causalAlgorithm) Restore(data []byte) (Model, error) {
	var m causalModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(err, "causalAlgorithm", "Restore", "decode model")
	}
	return &m, nil
}

type causalModel struct {
	MinUplift    float64 `json:"min_uplift"`
	Uplift       float64 `json:"uplift"`
	TreatedCases int     `json:"treated_cases"`
	ControlCases int     `json:"control_cases"`
	// TopResource is the resource that executed the treatment most often in
	// training, offered as the suggested executor.
	TopResource string `json:"top_resource,omitempty"`
}

func (m *causalModel) Prescribe(_ string, prefix []eventlog.Row) (*message.Prescription, error) {
	if len(prefix) == 0 {
		return nil, nil
	}
	// A case already treated has nothing left to prescribe.
	if casePositive(prefix, eventlog.ColumnTreatment) {
		return nil, nil
	}
	output := map[string]any{
		"treat":  m.Uplift > m.MinUplift,
		"uplift": m.Uplift,
	}
	if m.TopResource != "" {
		output["resource"] = m.TopResource
	}
	return &message.Prescription{
		Date:   time.Now().UTC(),
		Type:   "TREATMENT_EFFECT",
		Plugin: "causal",
		Output: output,
	}, nil
}

func (m *causalModel) Marshal() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(err, "causalModel", "Marshal", "encode model")
	}
	return raw, nil
}

func rate(hits, total int) float64 {
	return float64(hits) / float64(total)
}

// caseTreatmentResource returns the executor recorded on the first treated
// row of the case.
func caseTreatmentResource(rows []eventlog.Row) string {
	for _, row := range rows {
		if f, ok := cellFloat(row[eventlog.ColumnTreatment]); ok && f == 1 {
			return cellString(row[eventlog.ColumnTreatmentResource])
		}
	}
	return ""
}

func topKey(counts map[string]int) string {
	var best string
	bestN := 0
	for k, n := range counts {
		if n > bestN || (n == bestN && (best == "" || k < best)) {
			best, bestN = k, n
		}
	}
	return best
}
