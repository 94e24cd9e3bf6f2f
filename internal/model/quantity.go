package model

import (
	"encoding/json"

	"farm-control-backend/internal/parse"
)

// Quantity is a structured numeric value with an annotated unit, stored
// as a JSON column. The upstream provisioning feed is inconsistent
// about shape (bare numbers, numeric strings, {"value": ...} objects,
// single-element lists), so decoding is lenient: anything unusable
// comes out as zero with the malformed flag set, never as an error.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`

	malformed bool
}

// Malformed reports whether the stored payload could not be coerced
// into a number during decoding. Callers treat this as a data-quality
// warning, not a failure.
func (q Quantity) Malformed() bool { return q.malformed }

func (q *Quantity) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*q = Quantity{malformed: true}
		return nil
	}

	val, ok := parse.Number(raw)
	q.Value = val
	q.malformed = !ok
	q.Unit = ""

	// Recover the unit annotation when present.
	switch v := raw.(type) {
	case map[string]any:
		if u, isStr := v["unit"].(string); isStr {
			q.Unit = u
		}
	case []any:
		if len(v) > 0 {
			if m, isMap := v[0].(map[string]any); isMap {
				if u, isStr := m["unit"].(string); isStr {
					q.Unit = u
				}
			}
		}
	case nil:
		// A JSON null is an unset value, not a data-quality problem.
		q.malformed = false
	}
	return nil
}
