package resources

import (
	"errors"
	"math"
	"testing"

	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	r, err := Normalize(map[string]interface{}{
		"cpu":    2,
		"gpu":    0,
		"memory": 1.0,
		"disk":   10.5,
		"os":     []string{"RHEL_7"},
		"site":   "",
	})
	require.NoError(t, err)
	assert.Equal(t, Requirements{
		"cpu":  2.0,
		"disk": 10.5,
		"os":   []interface{}{"RHEL_7"},
	}, r)

	assert.Equal(t, 1.0, r.Float(Memory))
	assert.Equal(t, 0.0, r.Float(GPU))
}

func TestNormalizeRoundsIntegers(t *testing.T) {
	r, err := Normalize(map[string]interface{}{"cpu": 1.2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, r["cpu"])
}

func TestNormalizeRejects(t *testing.T) {
	_, err := Normalize(map[string]interface{}{
		"bogus":  1,
		"memory": "lots",
		"os":     42,
	})
	var verr model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr, 3)
}

func TestNormalizeRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		_, err := Normalize(map[string]interface{}{"memory": v})
		var verr model.ValidationError
		require.True(t, errors.As(err, &verr), "value %v", v)
		assert.Contains(t, verr[0], "must be finite")
	}
}

func TestEscalateMemory(t *testing.T) {
	cur := Requirements{"memory": 2.0}
	assert.Equal(t, map[string]float64{"memory": 4.5}, Escalate(cur, map[string]interface{}{"memory": 3.0}))
	assert.Empty(t, Escalate(Requirements{"memory": 8.0}, map[string]interface{}{"memory": 3.0}))
}

func TestEscalateCPU(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		used    float64
		expect  map[string]float64
	}{
		{"within ratio", 2, 2.1, map[string]float64{}},
		{"above ratio", 2, 4, map[string]float64{"cpu": 3}},
		{"far above ratio still +1", 1, 16, map[string]float64{"cpu": 2}},
		{"above cap", 4, 21, map[string]float64{}},
		{"at cap", 4, 20, map[string]float64{"cpu": 5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Escalate(Requirements{"cpu": tc.current}, map[string]interface{}{"cpu": tc.used})
			assert.Equal(t, tc.expect, got)
		})
	}
}

func TestEscalateDefaultsAndIntegers(t *testing.T) {
	got := Escalate(Requirements{}, map[string]interface{}{"gpu": 1.1, "time": 2.0, "os": "x"})
	assert.Equal(t, map[string]float64{"gpu": 2, "time": 3}, got)
}

func TestMatchFilterValidates(t *testing.T) {
	_, err := MatchFilter(map[string]interface{}{"memory": "x"})
	assert.Error(t, err)

	f, err := MatchFilter(map[string]interface{}{"gpu": 2, "memory": 4.0, "site": "A"})
	require.NoError(t, err)
	assert.Len(t, f, 4)
	assert.True(t, f.Has("requirements.gpu"))
}
