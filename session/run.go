package session

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/pulsemill/groove/density"
	"github.com/pulsemill/groove/logger"
	"github.com/pulsemill/groove/markov"
	"github.com/pulsemill/groove/metrics"
	"github.com/pulsemill/groove/modulate"
	"github.com/pulsemill/groove/pattern"
	"github.com/pulsemill/groove/scale"
	"github.com/pulsemill/groove/timebase"
)

// ErrInvalidConfig marks a session rejected before any events were emitted.
var ErrInvalidConfig = errors.New("invalid session configuration")

// Rescue baselines. Fixed safety constants: a rescue snaps the loop back
// to a straight, centered groove regardless of configuration.
const (
	rescueSwing    = 0.5
	rescueThinBias = -0.2
)

// Closed-hat Markov band and gains.
const (
	hatCFloor      = 0.25
	hatCCeil       = 0.95
	hatCInitProb   = 0.8
	hatCGain       = 0.15
	hatCDeltaCap   = 0.03
	hatCStickiness = 0.25
)

// Open-hat Markov band and gains.
const (
	hatOFloor      = 0.05
	hatOCeil       = 0.75
	hatOInitProb   = 0.4
	hatOGain       = 0.2
	hatODeltaCap   = 0.03
	hatOStickiness = 0.35
)

// Open-hat density band: the offbeat class holds at most four slots.
const (
	hatODensityTarget = 0.2
	hatODensityTol    = 0.05
)

// Default continuous modulators.
var (
	swingMod = modulate.Modulator{
		Name: "swing", Mode: modulate.ModeOU,
		Min: 0.51, Max: 0.58, Tau: 48, StepPerBar: 0.005, MaxDeltaPerBar: 0.01,
	}
	thinMod = modulate.Modulator{
		Name: "thin_bias", Mode: modulate.ModeOU,
		Min: -0.8, Max: 0.0, Tau: 32, StepPerBar: 0.02, MaxDeltaPerBar: 0.03,
	}
	rotRateMod = modulate.Modulator{
		Name: "rot_rate", Mode: modulate.ModeRandomWalk,
		Min: 0.0, Max: 0.125, StepPerBar: 0.01, MaxDeltaPerBar: 0.02,
	}
)

// state groups every value that crosses bar boundaries, so the bar loop
// itself carries no hidden state.
type state struct {
	swing    float64
	thinBias float64
	rotRate  float64
	rotAccum float64

	hatCProbs []float64
	hatOProbs []float64
	hatCPrev  bool
	hatOPrev  bool

	feedback   float64
	rescueNext bool
}

func newState() *state {
	st := &state{
		swing:     0.545,
		thinBias:  -0.2,
		hatCProbs: make([]float64, timebase.StepsPerBar),
		hatOProbs: make([]float64, timebase.StepsPerBar),
	}
	for i := range st.hatCProbs {
		st.hatCProbs[i] = hatCInitProb
		st.hatOProbs[i] = hatOInitProb
	}
	return st
}

// Run executes the session and returns the full event stream, telemetry
// series and rescue report. The loop is strictly sequential: bar n's
// state feeds bar n+1, so a single call owns its generator and is
// deterministic for a fixed seed.
func Run(cfg Config) (*Result, error) {
	if cfg.BPM <= 0 || cfg.PPQ <= 0 || cfg.Bars <= 0 {
		return nil, fmt.Errorf("%w: bpm=%v ppq=%d bars=%d must all be positive",
			ErrInvalidConfig, cfg.BPM, cfg.PPQ, cfg.Bars)
	}
	grid, err := timebase.NewGrid(cfg.PPQ, cfg.BPM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	rng := cfg.RNG
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = 1234
		}
		rng = rand.New(rand.NewSource(seed))
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetProjectLogger()
	}

	targets := DefaultTargets()
	if cfg.Targets != nil {
		targets = *cfg.Targets
	}
	guard := DefaultGuard()
	if cfg.Guard != nil {
		guard = *cfg.Guard
	}

	// Working copies: modulator bindings mutate these across bars without
	// touching the caller's structs.
	layers := map[string]*pattern.LayerConfig{
		LayerKick:      cloneOr(cfg.Kick, defaultKick),
		LayerHatClosed: cloneOr(cfg.HatClosed, defaultHatClosed),
		LayerHatOpen:   cloneOr(cfg.HatOpen, defaultHatOpen),
		LayerSnare:     cloneOr(cfg.Snare, defaultSnare),
		LayerClap:      cloneOr(cfg.Clap, defaultClap),
	}
	for _, name := range LayerNames {
		if layers[name].Steps != timebase.StepsPerBar {
			return nil, fmt.Errorf("%w: layer %s: steps must be %d, got %d",
				ErrInvalidConfig, name, timebase.StepsPerBar, layers[name].Steps)
		}
	}
	kick := layers[LayerKick]
	hatC := layers[LayerHatClosed]
	hatO := layers[LayerHatOpen]
	snare := layers[LayerSnare]
	clap := layers[LayerClap]

	st := newState()
	bindings, err := buildBindings(cfg.ParamMods, layers, st)
	if err != nil {
		return nil, err
	}

	res := &Result{EventsByLayer: make(map[string][]pattern.Event, len(LayerNames))}
	for _, name := range LayerNames {
		res.EventsByLayer[name] = nil
	}

	// Density weights: hats prefer staying off the quarter anchors; the
	// open hat may only ever gain onsets on its offbeat class.
	hatCWeights := make([]float64, timebase.StepsPerBar)
	hatOWeights := make([]float64, timebase.StepsPerBar)
	for i := range hatCWeights {
		hatCWeights[i] = 1.0
		if i%4 == 0 {
			hatCWeights[i] = 0.6
		}
		if markov.IsOffbeat(i) {
			hatOWeights[i] = 1.0
		}
	}

	for bar := 0; bar < cfg.Bars; bar++ {
		prevSwing, prevThin := st.swing, st.thinBias

		// 1. Advance all continuous processes.
		st.swing = swingMod.Step(st.swing, bar, rng)
		st.thinBias = thinMod.Step(st.thinBias, bar, rng)
		st.rotRate = scale.Clamp(rotRateMod.Step(st.rotRate, bar, rng), 0, guard.MaxRotRate)

		hatC.SwingPercent = st.swing
		hatO.SwingPercent = st.swing
		for _, b := range bindings {
			b.value = b.spec.Mod.Step(b.value, bar, rng)
			b.set(b.value)
		}

		// 2. Kick: fixed four-on-the-floor under an immutable guard,
		// otherwise rotation drift plus gated ghost/displacement moves.
		kickRot := kick.Rot
		if !guard.KickImmutable {
			rate := kick.RotationRatePerBar
			if rate <= 0 {
				rate = st.rotRate
			}
			st.rotAccum = math.Mod(st.rotAccum+scale.Clamp(rate, 0, guard.MaxRotRate), float64(timebase.StepsPerBar))
			kickRot = (kick.Rot + int(math.Round(st.rotAccum))) % timebase.StepsPerBar
		}
		kickMask, ghosts := pattern.KickBarMask(kick, kickRot, guard.KickImmutable, rng)
		kickEvents := pattern.BuildBarEvents(cfg.BPM, cfg.PPQ, 0, kick, kickMask, ghosts, rng, nil)

		// 3. Closed hat: rescue bars force the full grid; normal bars run
		// the update/sample/thin/density pipeline.
		var hatCMask []int
		if st.rescueNext {
			st.rescueNext = false
			hatCMask = fullMask()
			for i := range st.hatCProbs {
				st.hatCProbs[i] = hatCCeil
			}
			st.hatCPrev = false
		} else {
			st.hatCProbs = markov.UpdateProbabilities(st.hatCProbs, st.feedback,
				markov.DefaultMetricWeights, hatCGain, hatCDeltaCap, hatCFloor, hatCCeil)
			hatCMask, st.hatCPrev = markov.SampleMask(st.hatCProbs, rng, st.hatCPrev,
				false, hatCStickiness, hatCFloor, hatCCeil)
			thinHatMask(hatCMask, kickMask, st.thinBias, rng)
			hatCMask = density.Enforce(hatCMask, targets.HatDensityTarget, targets.HatDensityTol, hatCWeights)
		}
		hatCEvents := pattern.BuildBarEvents(cfg.BPM, cfg.PPQ, 0, hatC, hatCMask, nil, rng, nil)

		// 4. Open hat: same pipeline on the offbeat class, choked by the
		// closed hat.
		st.hatOProbs = markov.UpdateProbabilities(st.hatOProbs, st.feedback,
			markov.DefaultMetricWeights, hatOGain, hatODeltaCap, hatOFloor, hatOCeil)
		hatOMask, hatOPrev := markov.SampleMask(st.hatOProbs, rng, st.hatOPrev,
			true, hatOStickiness, hatOFloor, hatOCeil)
		st.hatOPrev = hatOPrev
		thinHatMask(hatOMask, kickMask, st.thinBias, rng)
		hatOMask = density.Enforce(hatOMask, hatODensityTarget, hatODensityTol, hatOWeights)
		hatOEvents := pattern.BuildBarEvents(cfg.BPM, cfg.PPQ, 0, hatO, hatOMask, nil, rng,
			onsetTicks(hatCEvents))

		// 5. Static backbeat layers.
		snareEvents := staticBarEvents(cfg.BPM, cfg.PPQ, bar, snare, rng)
		clapEvents := staticBarEvents(cfg.BPM, cfg.PPQ, bar, clap, rng)

		// Test hook: a forced silent window drops every layer before
		// metrics so the guard sees a dead bar.
		if w := cfg.InjectLowEBars; w != nil && bar >= w[0] && bar <= w[1] {
			kickEvents, hatCEvents, hatOEvents, snareEvents, clapEvents = nil, nil, nil, nil, nil
			hatCMask = make([]int, timebase.StepsPerBar)
		}

		// 6. Metrics over the union of all layers.
		union := concatEvents(kickEvents, hatCEvents, hatOEvents, snareEvents, clapEvents)
		unionMask := metrics.UnionMaskForBar(union, cfg.PPQ)
		e, s := metrics.EntrainmentSyncopation(unionMask)
		hatDensity := metrics.Density(hatCMask)
		hatEntropy := metrics.Entropy(hatCMask)

		// 7/8. Guard check, then feedback for the next bar.
		if e < guard.MinE {
			res.Rescues++
			res.RescueBars = append(res.RescueBars, bar)
			st.swing = rescueSwing
			st.rotAccum = 0
			st.thinBias = rescueThinBias
			st.feedback = 0
			st.rescueNext = true
			log.Warnf("bar %d: entrainment %.3f under guard %.3f, rescue queued", bar, e, guard.MinE)
		} else {
			sMid := 0.5 * (targets.SLow + targets.SHigh)
			syncErr := sMid - s
			hMid := 0.5 * (targets.EntropyLow + targets.EntropyHigh)
			entropyErr := hMid - hatEntropy
			densityErr := targets.HatDensityTarget - hatDensity

			st.feedback = 0.7*syncErr + 0.3*entropyErr

			st.thinBias += 0.1*syncErr + 0.2*densityErr
			st.thinBias = scale.ClampDelta(prevThin, st.thinBias, thinMod.MaxDeltaPerBar)
			st.thinBias = scale.Clamp(st.thinBias, thinMod.Min, thinMod.Max)

			st.swing += 0.02 * (0.545 - st.swing)
			st.swing = scale.ClampDelta(prevSwing, st.swing, swingMod.MaxDeltaPerBar)
			st.swing = scale.Clamp(st.swing, swingMod.Min, swingMod.Max)
		}

		// 9. Accent lane, bar offset, telemetry.
		if cfg.Accent != nil {
			union = pattern.ApplyAccent(union, cfg.PPQ, cfg.Accent, rng)
			kickEvents = filterNote(union, kick.Note)
			hatCEvents = filterNote(union, hatC.Note)
			hatOEvents = filterNote(union, hatO.Note)
			snareEvents = filterNote(union, snare.Note)
			clapEvents = filterNote(union, clap.Note)
		}

		offset := bar * grid.BarTicks
		appendOffset(res.EventsByLayer, LayerKick, kickEvents, offset)
		appendOffset(res.EventsByLayer, LayerHatClosed, hatCEvents, offset)
		appendOffset(res.EventsByLayer, LayerHatOpen, hatOEvents, offset)
		appendOffset(res.EventsByLayer, LayerSnare, snareEvents, offset)
		appendOffset(res.EventsByLayer, LayerClap, clapEvents, offset)

		res.EByBar = append(res.EByBar, e)
		res.SByBar = append(res.SByBar, s)
		res.HatDensityByBar = append(res.HatDensityByBar, hatDensity)
		res.HatEntropyByBar = append(res.HatEntropyByBar, hatEntropy)
		res.SwingSeries = append(res.SwingSeries, st.swing)
		res.ThinBiasSeries = append(res.ThinBiasSeries, st.thinBias)
		res.RotRateSeries = append(res.RotRateSeries, st.rotRate)
		res.HatCProbSeries = append(res.HatCProbSeries, append([]float64(nil), st.hatCProbs...))
		res.HatOProbSeries = append(res.HatOProbSeries, append([]float64(nil), st.hatOProbs...))
		res.Metrics = append(res.Metrics, BarMetrics{
			Bar: bar, E: e, S: s, HatDensity: hatDensity, HatEntropy: hatEntropy,
		})
		log.Debugf("bar %d: E=%.3f S=%.3f hat_density=%.3f hat_entropy=%.3f", bar, e, s, hatDensity, hatEntropy)
	}

	if cfg.LogPath != "" {
		if err := WriteTelemetry(cfg.LogPath, res.Metrics); err != nil {
			return nil, fmt.Errorf("writing telemetry log: %w", err)
		}
	}
	return res, nil
}

// thinHatMask probabilistically drops hat onsets near kick hits. The bias
// is negative: the closer the modulator sits to -1, the more aggressively
// slots around each kick are cleared.
func thinHatMask(mask, kickMask []int, bias float64, rng *rand.Rand) {
	keep := pattern.ThinProbsNearKick(1.0, len(mask), kickMask, 1, bias)
	for i := range mask {
		if mask[i] == 1 && rng.Float64() >= keep[i] {
			mask[i] = 0
		}
	}
}

func staticBarEvents(bpm float64, ppq, bar int, cfg *pattern.LayerConfig, rng *rand.Rand) []pattern.Event {
	mask := cfg.BaseMask()
	if len(cfg.Conditions) > 0 {
		mask = pattern.ApplyStepConditions(mask, bar, cfg.Conditions, rng)
	}
	return pattern.BuildBarEvents(bpm, ppq, 0, cfg, mask, nil, rng, nil)
}

func cloneOr(cfg *pattern.LayerConfig, fallback func() *pattern.LayerConfig) *pattern.LayerConfig {
	if cfg == nil {
		return fallback()
	}
	return cfg.Clone()
}

func fullMask() []int {
	mask := make([]int, timebase.StepsPerBar)
	for i := range mask {
		mask[i] = 1
	}
	return mask
}

func onsetTicks(events []pattern.Event) []int {
	ticks := make([]int, 0, len(events))
	for _, ev := range events {
		ticks = append(ticks, ev.StartTick)
	}
	return ticks
}

func concatEvents(groups ...[]pattern.Event) []pattern.Event {
	var out []pattern.Event
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func filterNote(events []pattern.Event, note uint8) []pattern.Event {
	var out []pattern.Event
	for _, ev := range events {
		if ev.Note == note {
			out = append(out, ev)
		}
	}
	return out
}

func appendOffset(byLayer map[string][]pattern.Event, name string, events []pattern.Event, offset int) {
	for _, ev := range events {
		ev.StartTick += offset
		byLayer[name] = append(byLayer[name], ev)
	}
}
