package provider

import "strconv"

// ExtractFloat normalizes a numeric field that providers encode either as a
// JSON number or as a quoted string (Steam's global percentages switch
// between the two depending on the endpoint version).
//
// Returns ok=false if the value is not numeric.
func ExtractFloat(val interface{}) (float64, bool) {
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
