package draft

import (
	"fmt"
	"strings"
	"time"
)

// Accepted layouts for stringified timestamps coming out of the NLU
// boundary, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// coerceString accepts a string or fmt.Stringer; anything else is rejected.
// Extraction payloads are untrusted, so a failed coercion is a skip for the
// caller, never an error.
func coerceString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case fmt.Stringer:
		return strings.TrimSpace(val.String()), true
	default:
		return "", false
	}
}

// coerceTime accepts a time.Time, an RFC3339-ish string, or a unix-seconds
// float (JSON numbers decode as float64).
func coerceTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(val), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
