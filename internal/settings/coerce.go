package settings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseFloat coerces a JSON-ish value to a finite float64, returning def for
// anything that is not a number or a numeric-looking string.
func ParseFloat(value any, def float64) float64 {
	parsed, ok := toFloat(value)
	if !ok || !isFinite(parsed) {
		return def
	}

	return parsed
}

// ParseInt coerces a JSON-ish value to an int. Fractional inputs are
// truncated toward zero; non-finite or out-of-range inputs yield def.
func ParseInt(value any, def int) int {
	switch typed := value.(type) {
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return int(parsed)
		}
	}

	parsed, ok := toFloat(value)
	if !ok || !isFinite(parsed) {
		return def
	}

	truncated := math.Trunc(parsed)
	if truncated >= math.MaxInt64 || truncated < math.MinInt64 {
		return def
	}

	return int(truncated)
}

// ParseBool accepts booleans, numbers (zero is false) and the tokens
// true/1/yes/on and false/0/no/off in any case.
func ParseBool(value any, def bool) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		default:
			return def
		}
	}

	parsed, ok := toFloat(value)
	if !ok || math.IsNaN(parsed) {
		return def
	}

	return parsed != 0
}

// stringOr returns value when it is a string, otherwise def.
func stringOr(value any, def string) string {
	text, ok := value.(string)
	if !ok {
		return def
	}

	return text
}

// nonBlankOr returns the trimmed string when it is not empty, otherwise def.
func nonBlankOr(value any, def string) string {
	text, ok := value.(string)
	if !ok {
		return def
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return def
	}

	return trimmed
}

// enumOr returns the trimmed string when it belongs to allowed, otherwise def.
func enumOr(value any, allowed map[string]struct{}, def string) string {
	text, ok := value.(string)
	if !ok {
		return def
	}

	trimmed := strings.TrimSpace(text)
	if !contains(allowed, trimmed) {
		return def
	}

	return trimmed
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}

		return parsed, true
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, false
		}

		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// objectOr returns value as a JSON object, or an empty one.
func objectOr(value any) map[string]any {
	object, ok := value.(map[string]any)
	if !ok {
		return map[string]any{}
	}

	return object
}
