package micro

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSwingDelaysOddStepsOnly(t *testing.T) {
	t.Parallel()

	// 1920 PPQ: swing 0.55 -> 0.05 * 240 = 12 ticks on odd 16ths.
	require.Equal(t, 1012, ApplySwingAndMicro(1, 1000, 0.55, 0, 132, 1920, 0))
	require.Equal(t, 1000, ApplySwingAndMicro(2, 1000, 0.55, 0, 132, 1920, 0))
	require.Equal(t, 1000, ApplySwingAndMicro(0, 1000, 0.55, 0, 132, 1920, 0))
}

func TestStraightAndNegativeSwingNeverPullEarlier(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1000, ApplySwingAndMicro(1, 1000, 0.5, 0, 132, 1920, 0))
	require.Equal(t, 1000, ApplySwingAndMicro(1, 1000, 0.45, 0, 132, 1920, 0))
}

func TestMicroOffsetCap(t *testing.T) {
	t.Parallel()

	// 132 BPM, 1920 PPQ: 4.224 ticks/ms. A +50ms offset capped at 12ms
	// adds round(12 * 4.224) = 51 ticks.
	require.Equal(t, 1051, ApplySwingAndMicro(0, 1000, 0, 50, 132, 1920, 12))
	require.Equal(t, 949, ApplySwingAndMicro(0, 1000, 0, -50, 132, 1920, 12))
	// no cap: full offset applies
	require.Equal(t, 1211, ApplySwingAndMicro(0, 1000, 0, 50, 132, 1920, 0))
}

func TestSampleBinDistribution(t *testing.T) {
	t.Parallel()

	bins := []float64{-10, -6, -2, 0}
	probs := []float64{0.4, 0.35, 0.2, 0.05}
	rng := rand.New(rand.NewSource(17))

	seen := map[float64]int{}
	for i := 0; i < 2000; i++ {
		v := SampleBin(bins, probs, rng)
		require.Contains(t, bins, v)
		seen[v]++
	}
	// The heaviest bin dominates the lightest one.
	require.Greater(t, seen[-10], seen[0])
}

func TestSampleBinEdgeCases(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	require.Equal(t, 0.0, SampleBin(nil, nil, rng))
	require.Equal(t, 3.0, SampleBin([]float64{3}, []float64{1}, rng))
}
