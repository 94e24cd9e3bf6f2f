package parse

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Number coerces a telemetry-derived value into a float64. The upstream
// feed is demo-grade and stores numbers inconsistently: bare numbers,
// numeric strings, {"value": ...} objects, or single-element lists of
// any of those. Returns false when the value is absent or unusable; the
// caller decides whether that is worth a warning. Accounting always
// degrades to zero rather than failing.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case map[string]any:
		return Number(n["value"])
	case []any:
		if len(n) == 0 {
			return 0, false
		}
		return Number(n[0])
	default:
		return 0, false
	}
}
