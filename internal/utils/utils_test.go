package utils

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		input any
		want  float64
		ok    bool
	}{
		{float64(42.5), 42.5, true},
		{7, 7, true},
		{json.Number("12"), 12, true},
		{"75", 75, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-Infinity", 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{"1e300", 1e300, true},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat64(tt.input)
		assert.Equal(t, tt.ok, ok, "input %v", tt.input)
		assert.Equal(t, tt.want, got, "input %v", tt.input)
	}
}

func TestToInt(t *testing.T) {
	got, ok := ToInt("75.9")
	assert.True(t, ok)
	assert.Equal(t, 75, got)

	_, ok = ToInt("loud")
	assert.False(t, ok)

	for _, input := range []any{"NaN", "Inf", "1e300", float64(-1e300), float64(math.MaxInt64)} {
		_, ok = ToInt(input)
		assert.False(t, ok, "input %v", input)
	}
}

func TestToString(t *testing.T) {
	got, ok := ToString("jazz")
	assert.True(t, ok)
	assert.Equal(t, "jazz", got)

	got, ok = ToString(float64(3))
	assert.True(t, ok)
	assert.Equal(t, "3", got)

	_, ok = ToString(map[string]any{})
	assert.False(t, ok)
}
