package panelstate

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// coerceString implements the "string" row of the coercion table in
// spec §4.5: any value becomes its canonical string form.
func coerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

// coerceNumber implements the "number" row: numeric strings parse,
// booleans map to 0/1, anything else invalid becomes 0.
func coerceNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// coerceBoolean implements the "boolean" row: "true"/non-zero/non-empty
// values are true; "false"/0/""/null/undefined are false.
func coerceBoolean(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case string:
		if x == "" || x == "false" {
			return false
		}
		if x == "true" {
			return true
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f != 0
		}
		return true
	default:
		return true
	}
}

// coerceList implements the "list" row: JSON-array strings parse,
// non-arrays become a single-element list, null/undefined becomes [].
func coerceList(v any) []any {
	switch x := v.(type) {
	case nil:
		return []any{}
	case []any:
		return x
	case string:
		var parsed []any
		if err := json.Unmarshal([]byte(x), &parsed); err == nil {
			return parsed
		}
		return []any{x}
	default:
		return []any{x}
	}
}

// coerceObject implements the "object" row: JSON-object strings parse,
// non-objects become {}.
func coerceObject(v any) map[string]any {
	switch x := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return x
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(x), &parsed); err == nil {
			return parsed
		}
		return map[string]any{}
	default:
		return map[string]any{}
	}
}
