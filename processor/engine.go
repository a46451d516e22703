// Package processor implements the event-log transformation engine: timestamp
// coercion, start/complete transition pairing, duration computation,
// outcome/treatment labeling and namespace renaming. The engine is pure with
// respect to its inputs; Worker wraps it into the stateless queue worker the
// coordinator delegates to.
package processor

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/pkg/worker"
)

// Engine transforms raw event-log tables per a column definition.
type Engine struct {
	parallelism int
	logger      *slog.Logger
}

// NewEngine returns an engine running its case walks on up to parallelism
// goroutines (defaults to GOMAXPROCS).
func NewEngine(parallelism int, logger *slog.Logger) *Engine {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		parallelism: parallelism,
		logger:      logger.With("component", "processor"),
	}
}

// caseRows is the per-case output of the pairing walk, kept grouped so the
// labeling pass can evaluate condition trees per case.
type caseRows struct {
	caseID string
	rows   []eventlog.Row
}

// shardJob is one contiguous run of cases walked by a single pool worker.
type shardJob struct {
	index  int
	groups []eventlog.CaseGroup
}

// Transform produces the cleaned, labeled, renamed table for a raw log.
func (e *Engine) Transform(ctx context.Context, raw *eventlog.Table, def *eventlog.Definition) (*eventlog.Table, error) {
	if err := def.Validate(); err != nil {
		return nil, errors.Wrap(err, "processor", "Transform", "validate definition")
	}
	layout, err := def.Layout()
	if err != nil {
		return nil, err
	}

	groups, err := raw.GroupByCase(def.CaseID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, errors.WrapInvalid(errors.ErrEmptyLog, "processor", "Transform", "group cases")
	}

	cases, err := e.walkCases(ctx, groups, def, layout)
	if err != nil {
		return nil, err
	}

	labelCases(cases, def)

	out := assemble(cases, def)
	e.logger.Debug("transform complete",
		"cases", len(cases), "rows_in", raw.Len(), "rows_out", out.Len())
	return out, nil
}

// walkCases runs the per-case walk sharded over the pool. Shards are
// contiguous runs of whole cases so no case is ever split, and results are
// concatenated in shard order to keep output deterministic.
func (e *Engine) walkCases(ctx context.Context, groups []eventlog.CaseGroup, def *eventlog.Definition, layout eventlog.TimestampLayout) ([]caseRows, error) {
	shards := shardGroups(groups, e.parallelism)
	results := make([][]caseRows, len(shards))
	errs := make([]error, len(shards))

	pool := worker.NewPool(e.parallelism, len(shards), func(_ context.Context, job shardJob) error {
		out := make([]caseRows, 0, len(job.groups))
		for _, g := range job.groups {
			rows, err := walkCase(g, def, layout)
			if err != nil {
				errs[job.index] = err
				return err
			}
			out = append(out, caseRows{caseID: g.CaseID, rows: rows})
		}
		results[job.index] = out
		return nil
	})
	if err := pool.Start(ctx); err != nil {
		return nil, err
	}
	for i, shard := range shards {
		if err := pool.SubmitWait(ctx, shardJob{index: i, groups: shard}); err != nil {
			pool.Stop()
			return nil, errors.Wrap(err, "processor", "walkCases", "submit shard")
		}
	}
	pool.Stop()

	var cases []caseRows
	for i := range shards {
		if errs[i] != nil {
			return nil, errs[i]
		}
		cases = append(cases, results[i]...)
	}
	return cases, nil
}

// shardGroups splits the case list into at most n contiguous shards of
// near-equal size.
func shardGroups(groups []eventlog.CaseGroup, n int) [][]eventlog.CaseGroup {
	if n > len(groups) {
		n = len(groups)
	}
	shards := make([][]eventlog.CaseGroup, 0, n)
	size := (len(groups) + n - 1) / n
	for start := 0; start < len(groups); start += size {
		end := start + size
		if end > len(groups) {
			end = len(groups)
		}
		shards = append(shards, groups[start:end])
	}
	return shards
}

// assemble flattens the labeled cases into one table with the canonical
// column order, then applies the namespace renaming that drops undeclared
// columns.
func assemble(cases []caseRows, def *eventlog.Definition) *eventlog.Table {
	t := eventlog.NewTable(intermediateColumns(def)...)
	for _, c := range cases {
		for _, r := range c.rows {
			t.Rows = append(t.Rows, r)
		}
	}
	return t.RenameColumns(renameMapping(def))
}

// intermediateColumns lists the columns the walk and labeling passes emit,
// before renaming: canonical roles first, then declared attributes in
// definition order.
func intermediateColumns(def *eventlog.Definition) []string {
	cols := []string{
		eventlog.ColumnCaseID,
		eventlog.ColumnActivity,
		eventlog.ColumnStartTimestamp,
		eventlog.ColumnEndTimestamp,
		eventlog.ColumnDuration,
	}
	if def.Resource != "" {
		cols = append(cols, eventlog.ColumnResource)
	}
	if def.Cost != "" {
		cols = append(cols, eventlog.ColumnCost)
	}
	for _, col := range sortedTypeColumns(def) {
		cols = append(cols, col)
	}
	if len(def.Outcome) > 0 {
		cols = append(cols, eventlog.ColumnOutcome)
	}
	if len(def.Treatment) > 0 {
		cols = append(cols, eventlog.ColumnTreatment)
		if def.Resource != "" {
			cols = append(cols, eventlog.ColumnTreatmentResource)
		}
	}
	return cols
}
