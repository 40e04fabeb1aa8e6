package modulate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func stepSeries(t *testing.T, m Modulator, start float64, bars int, seed int64) []float64 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vals := make([]float64, 0, bars)
	v := start
	for bar := 0; bar < bars; bar++ {
		v = m.Step(v, bar, rng)
		vals = append(vals, v)
	}
	return vals
}

func assertBoundsAndContinuity(t *testing.T, m Modulator, vals []float64, start float64) {
	t.Helper()
	prev := start
	for i, v := range vals {
		require.GreaterOrEqual(t, v, m.Min, "bar %d", i)
		require.LessOrEqual(t, v, m.Max, "bar %d", i)
		require.LessOrEqual(t, math.Abs(v-prev), m.MaxDeltaPerBar+1e-12, "bar %d", i)
		prev = v
	}
}

func TestRandomWalkBoundsAndContinuity(t *testing.T) {
	t.Parallel()

	m := Modulator{Mode: ModeRandomWalk, Min: 0, Max: 0.125, StepPerBar: 0.01, MaxDeltaPerBar: 0.02}
	vals := stepSeries(t, m, m.Mid(), 512, 7)
	assertBoundsAndContinuity(t, m, vals, m.Mid())
}

func TestOUBoundsAndContinuity(t *testing.T) {
	t.Parallel()

	m := Modulator{Mode: ModeOU, Min: 0.51, Max: 0.58, StepPerBar: 0.005, Tau: 48, MaxDeltaPerBar: 0.01}
	vals := stepSeries(t, m, 0.545, 512, 11)
	assertBoundsAndContinuity(t, m, vals, 0.545)
}

func TestOUMeanReverts(t *testing.T) {
	t.Parallel()

	// With no noise the process decays toward the range midpoint.
	m := Modulator{Mode: ModeOU, Min: 0, Max: 1, StepPerBar: 0, Tau: 4, MaxDeltaPerBar: 1}
	rng := rand.New(rand.NewSource(1))
	v := 0.95
	for bar := 0; bar < 64; bar++ {
		v = m.Step(v, bar, rng)
	}
	require.InDelta(t, 0.5, v, 0.01)
}

func TestSineIsDeterministicAndPeriodic(t *testing.T) {
	t.Parallel()

	m := Modulator{Mode: ModeSine, Min: 0.2, Max: 0.8, Tau: 16, MaxDeltaPerBar: 1}
	a := stepSeries(t, m, m.Mid(), 64, 1)
	b := stepSeries(t, m, m.Mid(), 64, 999)
	require.Equal(t, a, b) // seed independent

	for _, v := range a {
		require.GreaterOrEqual(t, v, 0.2)
		require.LessOrEqual(t, v, 0.8)
	}
}

func TestStepCapsLargeMoves(t *testing.T) {
	t.Parallel()

	// A sine jump far from the current value is capped at the delta limit.
	m := Modulator{Mode: ModeSine, Min: 0, Max: 1, Tau: 2, Phase: 0.25, MaxDeltaPerBar: 0.05}
	rng := rand.New(rand.NewSource(3))
	v := m.Step(0.0, 0, rng)
	require.LessOrEqual(t, math.Abs(v-0.0), 0.05+1e-12)
}
