package project

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order; the first match wins.
var timestampLayouts = []string{
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp resolves a field value to epoch seconds. Numeric values
// are taken as epoch seconds directly, truncated to an integer. Text values
// are matched against the supported layouts in UTC. A value that matches
// nothing reports ok false; parsing never fails with an error, the field is
// simply skipped by the caller.
func ParseTimestamp(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float32:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case time.Time:
		return t.Unix(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}

		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}

		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts.Unix(), true
			}
		}

		return 0, false
	default:
		return 0, false
	}
}
