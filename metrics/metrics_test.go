package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsemill/groove/pattern"
)

func maskFrom(steps ...int) []int {
	m := make([]int, 16)
	for _, s := range steps {
		m[s] = 1
	}
	return m
}

func TestEntrainmentTiers(t *testing.T) {
	t.Parallel()

	full := make([]int, 16)
	for i := range full {
		full[i] = 1
	}
	e, _ := EntrainmentSyncopation(full)
	require.Equal(t, 1.0, e)

	e, _ = EntrainmentSyncopation(maskFrom(0, 4, 8, 12))
	require.Equal(t, 0.9, e)

	noBeats := make([]int, 16)
	for i := range noBeats {
		if i%4 != 0 {
			noBeats[i] = 1
		}
	}
	e, _ = EntrainmentSyncopation(noBeats)
	require.InDelta(t, 0.7, e, 1e-9)

	e, _ = EntrainmentSyncopation(maskFrom(0, 8))
	require.InDelta(t, 0.85, e, 1e-9) // 0.7 + 0.3*(2/4)

	e, _ = EntrainmentSyncopation(make([]int, 16))
	require.InDelta(t, 0.7, e, 1e-9)
}

func TestSyncopationWeights(t *testing.T) {
	t.Parallel()

	// Beats only: zero syncopation.
	_, s := EntrainmentSyncopation(maskFrom(0, 4, 8, 12))
	require.Equal(t, 0.0, s)

	// 8th-note offbeats only.
	_, s = EntrainmentSyncopation(maskFrom(2, 6, 10, 14))
	require.InDelta(t, 0.4, s, 1e-9)

	// Remaining 16th positions.
	_, s = EntrainmentSyncopation(maskFrom(1, 3, 5))
	require.InDelta(t, 0.65, s, 1e-9)

	// Empty mask scores zero.
	_, s = EntrainmentSyncopation(make([]int, 16))
	require.Equal(t, 0.0, s)
}

func TestEntropy(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, Entropy(make([]int, 16)))
	full := make([]int, 16)
	for i := range full {
		full[i] = 1
	}
	require.Equal(t, 0.0, Entropy(full))
	require.InDelta(t, 1.0, Entropy(maskFrom(0, 1, 2, 3, 4, 5, 6, 7)), 1e-9)
}

func TestDensity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.25, Density(maskFrom(0, 4, 8, 12)))
	require.Equal(t, 0.0, Density(nil))
}

func TestUnionMaskForBar(t *testing.T) {
	t.Parallel()

	events := []pattern.Event{
		pattern.NewEvent(36, 110, 0, 240),
		pattern.NewEvent(42, 80, 960, 240),
		pattern.NewEvent(42, 80, 7680+480, 240), // next bar folds onto step 1
	}
	mask := UnionMaskForBar(events, 1920)
	require.Equal(t, maskFrom(0, 1, 2), mask)
}

func TestMicroOffsetsAndRMS(t *testing.T) {
	t.Parallel()

	// 4.224 ticks/ms at 132 BPM / 1920 PPQ. An event 42 ticks late is ~10ms off.
	events := []pattern.Event{
		pattern.NewEvent(42, 80, 42, 240),
		pattern.NewEvent(42, 80, 480, 240),
		pattern.NewEvent(36, 110, 0, 240), // other note ignored
	}
	ms := MicroOffsetsMs(events, 1920, 132, 42)
	require.Len(t, ms, 2)
	require.InDelta(t, 9.94, ms[0], 0.1)
	require.InDelta(t, 0.0, ms[1], 1e-9)

	require.InDelta(t, 5.0, RMS([]float64{5, -5, 5}), 1e-9)
	require.Equal(t, 0.0, RMS(nil))
}

func TestDispersion(t *testing.T) {
	t.Parallel()

	var regular []pattern.Event
	for i := 0; i < 8; i++ {
		regular = append(regular, pattern.NewEvent(36, 110, i*1920, 240))
	}
	require.Equal(t, 0.0, Dispersion(regular, 36))

	uneven := []pattern.Event{
		pattern.NewEvent(36, 110, 0, 240),
		pattern.NewEvent(36, 110, 100, 240),
		pattern.NewEvent(36, 110, 2000, 240),
		pattern.NewEvent(36, 110, 2200, 240),
	}
	require.Greater(t, Dispersion(uneven, 36), 0.5)
	require.Equal(t, 0.0, Dispersion(uneven[:2], 36))
}
