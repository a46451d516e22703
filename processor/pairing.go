package processor

import (
	"sort"
	"strings"
	"time"

	"github.com/prcore/prcore/eventlog"
)

// timedRow is a raw row with its parsed ordering timestamp.
type timedRow struct {
	ts  time.Time
	row eventlog.Row
}

// pending is an open activity instance awaiting its complete transition.
type pending struct {
	start time.Time
	row   eventlog.Row
}

// walkCase turns one case's raw rows into cleaned rows: one row per completed
// activity instance, with start/end timestamps and duration. Rows whose
// ordering timestamp cannot be parsed are dropped.
func walkCase(g eventlog.CaseGroup, def *eventlog.Definition, layout eventlog.TimestampLayout) ([]eventlog.Row, error) {
	switch layout {
	case eventlog.LayoutTransition:
		return walkTransitions(g, def)
	case eventlog.LayoutStartEnd:
		return walkStartEnd(g, def)
	default:
		return walkSingle(g, def)
	}
}

// walkSingle: each row is a complete instance already, start = end.
func walkSingle(g eventlog.CaseGroup, def *eventlog.Definition) ([]eventlog.Row, error) {
	out := make([]eventlog.Row, 0, len(g.Rows))
	for _, row := range g.Rows {
		ts, err := eventlog.ParseTimestamp(row[def.Timestamp])
		if err != nil {
			continue
		}
		out = append(out, mergeInstance(def, g.CaseID, ts, ts, row))
	}
	return out, nil
}

// walkStartEnd: explicit start and end columns per row. A missing or
// unparseable end falls back to the start (zero duration).
func walkStartEnd(g eventlog.CaseGroup, def *eventlog.Definition) ([]eventlog.Row, error) {
	out := make([]eventlog.Row, 0, len(g.Rows))
	for _, row := range g.Rows {
		start, err := eventlog.ParseTimestamp(row[def.StartTimestamp])
		if err != nil {
			continue
		}
		end, err := eventlog.ParseTimestamp(row[def.EndTimestamp])
		if err != nil {
			end = start
		}
		out = append(out, mergeInstance(def, g.CaseID, start, end, row))
	}
	return out, nil
}

// walkTransitions pairs start rows with their complete/abort rows. The
// pending map holds at most one open instance per activity name; a second
// start for a still-open activity overwrites the first (documented policy).
// A complete with no pending start emits a zero-duration row, and instances
// never completed are emitted with start = end = start at the end of the
// case.
func walkTransitions(g eventlog.CaseGroup, def *eventlog.Definition) ([]eventlog.Row, error) {
	timed := make([]timedRow, 0, len(g.Rows))
	for _, row := range g.Rows {
		ts, err := eventlog.ParseTimestamp(row[def.Timestamp])
		if err != nil {
			continue
		}
		timed = append(timed, timedRow{ts: ts, row: row})
	}
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].ts.Before(timed[j].ts) })

	open := make(map[string]pending)
	var out []eventlog.Row
	for _, tr := range timed {
		activity := cellString(tr.row[def.Activity])
		if activity == "" {
			continue
		}
		switch transitionKind(tr.row[def.Transition]) {
		case eventlog.TransitionStart:
			open[activity] = pending{start: tr.ts, row: tr.row}
		case eventlog.TransitionComplete, eventlog.TransitionAbort:
			if p, ok := open[activity]; ok {
				delete(open, activity)
				out = append(out, mergeInstance(def, g.CaseID, p.start, tr.ts, p.row, tr.row))
			} else {
				out = append(out, mergeInstance(def, g.CaseID, tr.ts, tr.ts, tr.row))
			}
		}
	}

	// Leftover starts, ordered by start time for determinism.
	leftovers := make([]pending, 0, len(open))
	for _, p := range open {
		leftovers = append(leftovers, p)
	}
	sort.Slice(leftovers, func(i, j int) bool {
		if leftovers[i].start.Equal(leftovers[j].start) {
			return cellString(leftovers[i].row[def.Activity]) < cellString(leftovers[j].row[def.Activity])
		}
		return leftovers[i].start.Before(leftovers[j].start)
	})
	for _, p := range leftovers {
		out = append(out, mergeInstance(def, g.CaseID, p.start, p.start, p.row))
	}
	return out, nil
}

// transitionKind normalizes a raw transition cell to one of the recognized
// lifecycle kinds; anything else (schedule, suspend, ...) returns "".
func transitionKind(v any) string {
	switch strings.ToLower(strings.TrimSpace(cellString(v))) {
	case eventlog.TransitionStart:
		return eventlog.TransitionStart
	case eventlog.TransitionComplete:
		return eventlog.TransitionComplete
	case eventlog.TransitionAbort, "abort":
		return eventlog.TransitionAbort
	default:
		return ""
	}
}

// mergeInstance builds one cleaned row from the source raw rows. Later
// sources win per column, so a paired complete row's attributes override the
// start row's.
func mergeInstance(def *eventlog.Definition, caseID string, start, end time.Time, sources ...eventlog.Row) eventlog.Row {
	out := eventlog.Row{
		eventlog.ColumnCaseID:         caseID,
		eventlog.ColumnActivity:       firstCell(sources, def.Activity, eventlog.TypeText),
		eventlog.ColumnStartTimestamp: start,
		eventlog.ColumnEndTimestamp:   end,
		eventlog.ColumnDuration:       durationSeconds(def, start, end, sources),
	}
	if def.Resource != "" {
		out[eventlog.ColumnResource] = firstCell(sources, def.Resource, eventlog.TypeText)
	}
	if def.Cost != "" {
		out[eventlog.ColumnCost] = firstCell(sources, def.Cost, eventlog.TypeNumber)
	}
	for col, ct := range def.Types {
		out[col] = firstCell(sources, col, ct)
	}
	return out
}

// durationSeconds prefers a declared duration column, falling back to the
// end-start difference.
func durationSeconds(def *eventlog.Definition, start, end time.Time, sources []eventlog.Row) float64 {
	if def.Duration != "" {
		if v := firstCell(sources, def.Duration, eventlog.TypeDuration); v != nil {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return end.Sub(start).Seconds()
}

// firstCell returns the coerced value of the named column from the last
// source row that can provide one, nil when none can.
func firstCell(sources []eventlog.Row, col string, ct eventlog.ColumnType) any {
	for i := len(sources) - 1; i >= 0; i-- {
		if v := eventlog.CoerceValue(sources[i][col], ct); v != nil {
			return v
		}
	}
	return nil
}

// cellString renders a cell as text, empty string when it cannot be.
func cellString(v any) string {
	s, _ := eventlog.CoerceValue(v, eventlog.TypeText).(string)
	return s
}
