package utils

import (
	"encoding/json"
	"math"
	"strconv"
)

// ToFloat64 accepts JSON numbers, Go ints and numeric strings such as the
// payloads Home Assistant renders from a command template. NaN and infinities are rejected.
func ToFloat64(value any) (float64, bool) {
	f, ok := toFloat64(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt truncates toward zero, "75.9" becomes 75. Values outside the int range are rejected.
func ToInt(value any) (int, bool) {
	f, ok := ToFloat64(value)
	if !ok || f < math.MinInt || f >= math.MaxInt {
		return 0, false
	}
	return int(f), true
}

func ToString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
