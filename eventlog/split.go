package eventlog

import (
	"fmt"

	"github.com/prcore/prcore/errors"
)

// SplitGrouped partitions a table into training and holdout tables at the
// case level: every row of a case lands on the same side, cases in
// first-appearance order. trainFraction is clamped to (0,1); the training
// side always gets at least one case when two or more exist.
func SplitGrouped(t *Table, caseColumn string, trainFraction float64) (train, holdout *Table, err error) {
	groups, err := t.GroupByCase(caseColumn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Table", "SplitGrouped", "group")
	}
	if len(groups) == 0 {
		return nil, nil, errors.WrapInvalid(errors.ErrEmptyLog, "Table", "SplitGrouped",
			fmt.Sprintf("split on %q", caseColumn))
	}

	if trainFraction <= 0 || trainFraction >= 1 {
		trainFraction = 0.8
	}
	cut := int(float64(len(groups)) * trainFraction)
	if cut < 1 {
		cut = 1
	}
	if cut >= len(groups) && len(groups) > 1 {
		cut = len(groups) - 1
	}

	train = &Table{Columns: append([]string(nil), t.Columns...)}
	holdout = &Table{Columns: append([]string(nil), t.Columns...)}
	for i, g := range groups {
		dst := train
		if i >= cut {
			dst = holdout
		}
		dst.Rows = append(dst.Rows, g.Rows...)
	}
	return train, holdout, nil
}
