package plugin

import (
	"fmt"
	"strconv"

	"github.com/prcore/prcore/eventlog"
)

// Helpers for reading cells out of processed tables. Labels are written as
// float64 but arrive as json.Number-free interface values after artifact
// round trips, so readers stay permissive about the concrete type.

func cellString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}

func cellFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// casePositive reports whether any row of the case carries a 1.0 label in
// the column.
func casePositive(rows []eventlog.Row, column string) bool {
	for _, row := range rows {
		if f, ok := cellFloat(row[column]); ok && f == 1 {
			return true
		}
	}
	return false
}

func intParam(params map[string]any, key string, fallback int) int {
	if f, ok := cellFloat(params[key]); ok {
		return int(f)
	}
	return fallback
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	if f, ok := cellFloat(params[key]); ok {
		return f
	}
	return fallback
}
