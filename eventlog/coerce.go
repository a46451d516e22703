package eventlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prcore/prcore/errors"
)

// zonedLayouts carry an explicit offset; naiveLayouts do not. RFC3339 first
// since serialized tables round-trip through it.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"01/02/2006 15:04:05",
}

// naiveZone marks timestamps parsed without an explicit offset so datetime
// comparison can localize them against zone-aware values.
var naiveZone = time.FixedZone("", 0)

// isNaive reports whether t was parsed without an explicit offset. Only the
// sentinel location counts: an explicit +00:00 offset parses into a distinct
// fixed zone and stays zone-aware.
func isNaive(t time.Time) bool {
	return t.Location() == naiveZone
}

// ParseTimestamp coerces a cell into a time.Time. Accepted inputs: time.Time,
// RFC3339-ish strings, and unix epoch seconds (int or float).
func ParseTimestamp(v any) (time.Time, error) {
	switch value := v.(type) {
	case time.Time:
		return value, nil
	case string:
		s := strings.TrimSpace(value)
		for _, layout := range zonedLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		for _, layout := range naiveLayouts {
			if ts, err := time.ParseInLocation(layout, s, naiveZone); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, errors.WrapInvalid(
			fmt.Errorf("unrecognized timestamp %q", s), "eventlog", "ParseTimestamp", "parse")
	case float64:
		sec := int64(value)
		nsec := int64((value - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), nil
	case int64:
		return time.Unix(value, 0).UTC(), nil
	case int:
		return time.Unix(int64(value), 0).UTC(), nil
	default:
		return time.Time{}, errors.WrapInvalid(
			fmt.Errorf("cannot coerce %T to timestamp", v), "eventlog", "ParseTimestamp", "parse")
	}
}

// reconcileZones handles datetime comparison across zone-aware and naive
// values: when exactly one side carries an explicit offset, the naive side is
// localized into the aware side's zone, preserving its wall-clock reading.
func reconcileZones(a, b time.Time) (time.Time, time.Time) {
	naiveA := isNaive(a)
	naiveB := isNaive(b)

	switch {
	case naiveB && !naiveA:
		b = localize(b, a.Location())
	case naiveA && !naiveB:
		a = localize(a, b.Location())
	}
	return a, b
}

// localize reinterprets t's wall-clock fields in the given location.
func localize(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// toFloat coerces a cell to float64.
func toFloat(v any) (float64, bool) {
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
		return parseFloat(value)
	default:
		return 0, false
	}
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// toBool coerces a cell to bool. Textual true/false, yes/no and 1/0 are
// accepted the way upload parsing leaves them.
func toBool(v any) (bool, bool) {
	switch value := v.(type) {
	case bool:
		return value, true
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "1", "t":
			return true, true
		case "false", "no", "0", "f":
			return false, true
		}
		return false, false
	case float64:
		if value == 1 {
			return true, true
		}
		if value == 0 {
			return false, true
		}
		return false, false
	case int:
		if value == 1 {
			return true, true
		}
		if value == 0 {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// CoerceValue normalizes a raw cell to the canonical representation of its
// declared type: float64 for numbers and durations, bool for booleans,
// time.Time for datetimes, string otherwise. Cells that cannot be coerced
// come back nil so a malformed value stays visible as a gap, not a crash.
func CoerceValue(v any, ct ColumnType) any {
	if v == nil {
		return nil
	}
	switch ct {
	case TypeNumber, TypeDuration:
		if f, ok := toFloat(v); ok {
			return f
		}
	case TypeBoolean:
		if b, ok := toBool(v); ok {
			return b
		}
	case TypeDatetime:
		if ts, err := ParseTimestamp(v); err == nil {
			return ts
		}
	case TypeText, TypeCategorical:
		if s, ok := stringValue(v); ok {
			return s
		}
	}
	return nil
}

// durationUnits maps threshold units to seconds. Months use the 30-day
// convention of the source logs.
var durationUnits = map[string]float64{
	"second": 1, "seconds": 1, "sec": 1, "secs": 1, "s": 1,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60, "m": 60,
	"hour": 3600, "hours": 3600, "hr": 3600, "hrs": 3600, "h": 3600,
	"day": 86400, "days": 86400, "d": 86400,
	"week": 604800, "weeks": 604800, "w": 604800,
	"month": 2592000, "months": 2592000,
}

// ParseDurationThreshold parses a "<n> <unit>" duration threshold into
// seconds, e.g. "3 days" -> 259200. A bare number is taken as seconds.
func ParseDurationThreshold(s string) (float64, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	switch len(fields) {
	case 1:
		if f, ok := parseFloat(fields[0]); ok {
			return f, nil
		}
	case 2:
		n, ok := parseFloat(fields[0])
		if !ok {
			break
		}
		unit, known := durationUnits[fields[1]]
		if !known {
			return 0, errors.WrapInvalid(
				fmt.Errorf("unknown duration unit %q", fields[1]),
				"eventlog", "ParseDurationThreshold", "parse unit")
		}
		return n * unit, nil
	}
	return 0, errors.WrapInvalid(
		fmt.Errorf("invalid duration threshold %q", s),
		"eventlog", "ParseDurationThreshold", "parse")
}
