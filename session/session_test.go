package session

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/pulsemill/groove/modulate"
	"github.com/pulsemill/groove/pattern"
	"github.com/pulsemill/groove/timebase"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func runDefault(t *testing.T, bars int, seed int64) *Result {
	t.Helper()
	res, err := Run(Config{BPM: 132, PPQ: 1920, Bars: bars, Seed: seed, Logger: quietLogger()})
	require.NoError(t, err)
	return res
}

func barStep(tick, ppq int) int {
	barTicks := timebase.TicksPerBar(ppq, 4)
	return (tick % barTicks) / (barTicks / 16)
}

func TestRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{
		{BPM: 0, PPQ: 1920, Bars: 8},
		{BPM: 132, PPQ: 0, Bars: 8},
		{BPM: 132, PPQ: 1920, Bars: 0},
		{BPM: -1, PPQ: 1920, Bars: 8},
	} {
		_, err := Run(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)
	}

	badSteps := &pattern.LayerConfig{Steps: 12, Fills: 4, Note: 36, Velocity: 110}
	_, err := Run(Config{BPM: 132, PPQ: 1920, Bars: 8, Kick: badSteps, Logger: quietLogger()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestKickImmutableFourOnTheFloor(t *testing.T) {
	t.Parallel()

	res := runDefault(t, 32, 77)
	barTicks := timebase.TicksPerBar(1920, 4)
	counts := make([]int, 32)
	for _, ev := range res.EventsByLayer[LayerKick] {
		counts[ev.StartTick/barTicks]++
		step := barStep(ev.StartTick, 1920)
		require.Contains(t, []int{0, 4, 8, 12}, step)
	}
	for bar, c := range counts {
		require.Equal(t, 4, c, "bar %d", bar)
	}
}

func TestDeterminismForFixedSeed(t *testing.T) {
	t.Parallel()

	a := runDefault(t, 48, 4242)
	b := runDefault(t, 48, 4242)
	require.Equal(t, a.EventsByLayer, b.EventsByLayer)
	require.Equal(t, a.Metrics, b.Metrics)
	require.Equal(t, a.SwingSeries, b.SwingSeries)
	require.Equal(t, a.RescueBars, b.RescueBars)

	c := runDefault(t, 48, 4243)
	require.NotEqual(t, a.EventsByLayer, c.EventsByLayer)
}

func maxDelta(seq []float64) float64 {
	m := 0.0
	for i := 1; i < len(seq); i++ {
		if d := math.Abs(seq[i] - seq[i-1]); d > m {
			m = d
		}
	}
	return m
}

func TestModulatorContinuityAndBounds(t *testing.T) {
	t.Parallel()

	res := runDefault(t, 64, 9)
	require.Zero(t, res.Rescues) // immutable kick keeps E at 0.9+

	require.LessOrEqual(t, maxDelta(res.SwingSeries), 0.011)
	require.LessOrEqual(t, maxDelta(res.ThinBiasSeries), 0.031)
	require.LessOrEqual(t, maxDelta(res.RotRateSeries), 0.021)

	for _, v := range res.SwingSeries {
		require.GreaterOrEqual(t, v, 0.51-1e-9)
		require.LessOrEqual(t, v, 0.58+1e-9)
	}
	for _, v := range res.ThinBiasSeries {
		require.GreaterOrEqual(t, v, -0.8-1e-9)
		require.LessOrEqual(t, v, 0.0+1e-9)
	}
	for _, v := range res.RotRateSeries {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 0.125+1e-9)
	}
}

func assertProbSeries(t *testing.T, series [][]float64, rescueBars []int, floor, ceil, deltaCap float64) {
	t.Helper()
	rescues := make(map[int]bool, len(rescueBars))
	for _, b := range rescueBars {
		rescues[b] = true
	}
	for bar, probs := range series {
		for step, p := range probs {
			require.GreaterOrEqual(t, p, floor-1e-9, "bar %d step %d", bar, step)
			require.LessOrEqual(t, p, ceil+1e-9, "bar %d step %d", bar, step)
			if bar > 0 && !rescues[bar-1] {
				d := math.Abs(p - series[bar-1][step])
				require.LessOrEqual(t, d, deltaCap+1e-9, "bar %d step %d", bar, step)
			}
		}
	}
}

func TestProbabilityVectorBoundsAndContinuity(t *testing.T) {
	t.Parallel()

	res := runDefault(t, 64, 21)
	assertProbSeries(t, res.HatCProbSeries, res.RescueBars, 0.25, 0.95, 0.031)
	assertProbSeries(t, res.HatOProbSeries, res.RescueBars, 0.05, 0.75, 0.031)
}

func TestHatDensityPerBar(t *testing.T) {
	t.Parallel()

	res := runDefault(t, 64, 5)
	require.Zero(t, res.Rescues)

	barTicks := timebase.TicksPerBar(1920, 4)
	hatcCounts := make([]int, 64)
	for _, ev := range res.EventsByLayer[LayerHatClosed] {
		hatcCounts[ev.StartTick/barTicks]++
	}
	for bar, c := range hatcCounts {
		require.GreaterOrEqual(t, c, 9, "bar %d", bar)
		require.LessOrEqual(t, c, 13, "bar %d", bar)
	}

	// Open hat: distinct onset slots stay within the enforced band even
	// though ratchets can multiply events on a slot.
	hatoSteps := make([]map[int]bool, 64)
	for i := range hatoSteps {
		hatoSteps[i] = map[int]bool{}
	}
	for _, ev := range res.EventsByLayer[LayerHatOpen] {
		b := ev.StartTick / barTicks
		hatoSteps[b][barStep(ev.StartTick, 1920)] = true
	}
	for bar, steps := range hatoSteps {
		require.GreaterOrEqual(t, len(steps), 2, "bar %d", bar)
		require.LessOrEqual(t, len(steps), 4, "bar %d", bar)
		for s := range steps {
			require.Equal(t, 2, s%4, "bar %d step %d off the offbeat class", bar, s)
		}
	}
}

func TestGuardRescueAndRecovery(t *testing.T) {
	t.Parallel()

	window := [2]int{10, 12}
	res, err := Run(Config{
		BPM: 132, PPQ: 1920, Bars: 64, Seed: 31,
		InjectLowEBars: &window,
		Logger:         quietLogger(),
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Rescues, 1)
	require.Contains(t, res.RescueBars, 10)

	// Entrainment recovers above the guard within 8 bars of the window end.
	recovered := false
	for bar := 13; bar <= 20; bar++ {
		if res.EByBar[bar] >= 0.78 {
			recovered = true
			break
		}
	}
	require.True(t, recovered)
}

func TestSyncopationConvergesToBand(t *testing.T) {
	t.Parallel()

	res := runDefault(t, 128, 1)
	tail := append([]float64(nil), res.SByBar[64:]...)
	sort.Float64s(tail)
	median := tail[len(tail)/2]
	require.GreaterOrEqual(t, median, 0.35)
	require.LessOrEqual(t, median, 0.55)
	require.Less(t, tail[len(tail)-1]-tail[0], 0.3)
}

func TestMicroTimingStaysUnderCaps(t *testing.T) {
	t.Parallel()

	res := runDefault(t, 64, 13)
	barTicks := timebase.TicksPerBar(1920, 4)
	stepTicks := barTicks / 16
	tpm := 4.224 // ticks per ms at 132 BPM, 1920 PPQ

	// Closed hat: swing (<=0.58 -> 19 ticks) plus bins capped at 12 ms.
	for _, ev := range res.EventsByLayer[LayerHatClosed] {
		within := ev.StartTick % stepTicks
		if within > stepTicks/2 {
			within -= stepTicks
		}
		require.LessOrEqual(t, math.Abs(float64(within)/tpm), 12.0+5.0)
	}
}

func TestParamModulatorBindings(t *testing.T) {
	t.Parallel()

	mods := []modulate.ParamSpec{
		{
			Name:      "hat_swing",
			ParamPath: "hat_c.swing_percent",
			Mod: modulate.Modulator{
				Mode: modulate.ModeOU, Min: 0.53, Max: 0.57,
				StepPerBar: 0.01, Tau: 24, MaxDeltaPerBar: 0.01,
			},
		},
		{
			Name:      "thin",
			ParamPath: "thin_bias",
			Mod: modulate.Modulator{
				Mode: modulate.ModeRandomWalk, Min: -0.6, Max: -0.1,
				StepPerBar: 0.03, MaxDeltaPerBar: 0.03,
			},
		},
	}
	res, err := Run(Config{BPM: 132, PPQ: 1920, Bars: 48, Seed: 3, ParamMods: mods, Logger: quietLogger()})
	require.NoError(t, err)

	// The bound thinning bias stays inside the session's hard range and moves.
	distinct := map[float64]bool{}
	for _, v := range res.ThinBiasSeries {
		require.GreaterOrEqual(t, v, -0.8-1e-9)
		require.LessOrEqual(t, v, 0.0+1e-9)
		distinct[math.Round(v*1e4)] = true
	}
	require.Greater(t, len(distinct), 1)
}

func TestParamModulatorUnknownPathFailsFast(t *testing.T) {
	t.Parallel()

	bad := []modulate.ParamSpec{{Name: "x", ParamPath: "laser.swing_percent"}}
	_, err := Run(Config{BPM: 132, PPQ: 1920, Bars: 8, ParamMods: bad, Logger: quietLogger()})
	require.ErrorIs(t, err, ErrUnknownParamPath)

	scalarIndexed := []modulate.ParamSpec{{Name: "x", ParamPath: "thin_bias.extra"}}
	_, err = Run(Config{BPM: 132, PPQ: 1920, Bars: 8, ParamMods: scalarIndexed, Logger: quietLogger()})
	require.ErrorIs(t, err, ErrUnknownParamPath)

	badField := []modulate.ParamSpec{{Name: "x", ParamPath: "hat_c.sparkle"}}
	_, err = Run(Config{BPM: 132, PPQ: 1920, Bars: 8, ParamMods: badField, Logger: quietLogger()})
	require.ErrorIs(t, err, ErrUnknownParamPath)
}

func TestKickVariationGhostsAndDisplacements(t *testing.T) {
	t.Parallel()

	kick := &pattern.LayerConfig{
		Steps: 16, Fills: 4, Rot: 1, Note: 36, Velocity: 110,
		RotationRatePerBar: 0.0,
		GhostPre1Prob:      0.25,
		DisplaceInto2Prob:  0.2,
	}
	guard := Guard{MinE: 0.0, MaxRotRate: 0.0, KickImmutable: false}
	res, err := Run(Config{BPM: 132, PPQ: 1920, Bars: 64, Seed: 8, Kick: kick, Guard: &guard, Logger: quietLogger()})
	require.NoError(t, err)

	barTicks := timebase.TicksPerBar(1920, 4)
	counts := make([]int, 64)
	ghost, displaced := false, false
	for _, ev := range res.EventsByLayer[LayerKick] {
		counts[ev.StartTick/barTicks]++
		switch barStep(ev.StartTick, 1920) % 4 {
		case 3:
			ghost = true
		case 2:
			displaced = true
		}
	}
	hasFour, hasMore := false, false
	for _, c := range counts {
		if c == 4 {
			hasFour = true
		}
		if c > 4 {
			hasMore = true
		}
	}
	require.True(t, ghost, "no ghost hits over 64 bars")
	require.True(t, displaced, "no displacements over 64 bars")
	require.True(t, hasMore, "ghosts never added density")
	require.True(t, hasFour, "every bar varied")
}

func TestKickRotationDriftsOverTime(t *testing.T) {
	t.Parallel()

	kick := &pattern.LayerConfig{
		Steps: 16, Fills: 4, Rot: 1, Note: 36, Velocity: 110,
		RotationRatePerBar: 0.08,
	}
	guard := Guard{MinE: 0.0, MaxRotRate: 0.125, KickImmutable: false}
	res, err := Run(Config{BPM: 132, PPQ: 1920, Bars: 64, Seed: 15, Kick: kick, Guard: &guard, Logger: quietLogger()})
	require.NoError(t, err)

	barTicks := timebase.TicksPerBar(1920, 4)
	firstHits := map[int]bool{}
	for bar := 0; bar < 64; bar++ {
		first := 16
		for _, ev := range res.EventsByLayer[LayerKick] {
			if ev.StartTick/barTicks != bar {
				continue
			}
			if s := barStep(ev.StartTick, 1920); s < first {
				first = s
			}
		}
		if first < 16 {
			firstHits[first] = true
		}
	}
	require.Greater(t, len(firstHits), 1, "rotation never moved the first hit")
}

func TestTelemetryLogWritten(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session_log.csv")
	_, err := Run(Config{BPM: 130, PPQ: 1920, Bars: 16, Seed: 2, LogPath: path, Logger: quietLogger()})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 17) // header + 16 bars
	require.Equal(t, []string{"bar", "E", "S", "hat_density", "hat_entropy"}, rows[0])
}

func TestAccentLaneRaisesDownbeatVelocity(t *testing.T) {
	t.Parallel()

	accent := &pattern.AccentProfile{Steps1Idx: []int{1}, Prob: 1.0, VelocityScale: 1.1, LengthScale: 1.0}
	res, err := Run(Config{BPM: 132, PPQ: 1920, Bars: 8, Seed: 4, Accent: accent, Logger: quietLogger()})
	require.NoError(t, err)

	for _, ev := range res.EventsByLayer[LayerKick] {
		if barStep(ev.StartTick, 1920) == 0 {
			require.Equal(t, uint8(121), ev.Velocity) // 110 * 1.1
		}
	}
}
