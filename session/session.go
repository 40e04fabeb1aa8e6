// Package session runs the bar-by-bar adaptive control loop: Euclidean
// kick, Markov-sampled hats, continuous modulators, density enforcement,
// swing and micro-timing, rhythm-quality metrics and the guard/rescue
// feedback that keeps the groove from drifting into unmusical territory.
package session

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/pulsemill/groove/modulate"
	"github.com/pulsemill/groove/pattern"
)

// Layer names used as keys in the result's event map.
const (
	LayerKick      = "kick"
	LayerHatClosed = "hat_c"
	LayerHatOpen   = "hat_o"
	LayerSnare     = "snare"
	LayerClap      = "clap"
)

// LayerNames lists the layers in build order. The order is fixed so a
// seeded run is byte-identical between executions.
var LayerNames = []string{LayerKick, LayerHatClosed, LayerHatOpen, LayerSnare, LayerClap}

// Targets are the rhythm-quality bands the feedback loop steers toward.
type Targets struct {
	ETarget          float64 `json:"e_target"`
	SLow             float64 `json:"s_low"`
	SHigh            float64 `json:"s_high"`
	HatDensityTarget float64 `json:"hat_density_target"`
	HatDensityTol    float64 `json:"hat_density_tol"`
	EntropyLow       float64 `json:"entropy_low"`
	EntropyHigh      float64 `json:"entropy_high"`
	MicroCapMs       float64 `json:"micro_cap_ms"`
}

// DefaultTargets returns the stock quality bands.
func DefaultTargets() Targets {
	return Targets{
		ETarget:          0.8,
		SLow:             0.35,
		SHigh:            0.55,
		HatDensityTarget: 0.7,
		HatDensityTol:    0.05,
		EntropyLow:       0.5,
		EntropyHigh:      0.9,
		MicroCapMs:       12.0,
	}
}

// Guard is the safety envelope. When the bar's entrainment falls under
// MinE a rescue fires: modulators snap to safe baselines and the next bar
// forces a full closed-hat grid.
type Guard struct {
	MinE          float64 `json:"min_e"`
	MaxRotRate    float64 `json:"max_rot_rate"`
	KickImmutable bool    `json:"kick_immutable"`
}

// DefaultGuard returns the stock guard: immutable four-on-the-floor kick.
func DefaultGuard() Guard {
	return Guard{MinE: 0.78, MaxRotRate: 0.125, KickImmutable: true}
}

// Config describes one session. Layer configs are optional; nil fields
// fall back to the stock techno kit. The caller keeps ownership of the
// structs it passes in: the session clones anything it mutates.
type Config struct {
	BPM  float64
	PPQ  int
	Bars int

	// Seed drives the session's private generator when RNG is nil.
	Seed int64
	RNG  *rand.Rand

	Targets *Targets
	Guard   *Guard

	Kick      *pattern.LayerConfig
	HatClosed *pattern.LayerConfig
	HatOpen   *pattern.LayerConfig
	Snare     *pattern.LayerConfig
	Clap      *pattern.LayerConfig

	ParamMods []modulate.ParamSpec
	Accent    *pattern.AccentProfile

	// LogPath, when set, receives the per-bar telemetry as CSV at the end
	// of the run.
	LogPath string

	Logger *logrus.Logger

	// InjectLowEBars silences every layer for the inclusive bar range
	// [Lo,Hi] before metrics are computed. Test hook for guard coverage.
	InjectLowEBars *[2]int
}

// BarMetrics is the per-bar telemetry row.
type BarMetrics struct {
	Bar        int
	E          float64
	S          float64
	HatDensity float64
	HatEntropy float64
}

// Result is everything a session produces: the per-layer event stream,
// the telemetry series and the rescue report.
type Result struct {
	EventsByLayer map[string][]pattern.Event

	EByBar          []float64
	SByBar          []float64
	HatDensityByBar []float64
	HatEntropyByBar []float64

	SwingSeries    []float64
	ThinBiasSeries []float64
	RotRateSeries  []float64

	HatCProbSeries [][]float64
	HatOProbSeries [][]float64

	Rescues    int
	RescueBars []int

	Metrics []BarMetrics
}

// Stock layer configurations, mirroring the default techno kit.

func defaultKick() *pattern.LayerConfig {
	return &pattern.LayerConfig{Steps: 16, Fills: 4, Rot: 1, Note: 36, Velocity: 110}
}

func defaultHatClosed() *pattern.LayerConfig {
	return &pattern.LayerConfig{
		Steps: 16, Fills: 12, Rot: 0, Note: 42, Velocity: 80,
		BeatBinsMs:    []float64{-10, -6, -2, 0},
		BeatBinsProbs: []float64{0.4, 0.35, 0.2, 0.05},
		BeatBinCapMs:  12,
	}
}

func defaultHatOpen() *pattern.LayerConfig {
	return &pattern.LayerConfig{
		Steps: 16, Fills: 16, Rot: 0, Note: 46, Velocity: 80,
		OffbeatsOnly: true,
		RatchetProb:  0.06, RatchetRepeat: 3,
		BeatBinsMs:    []float64{-2, 0, 2},
		BeatBinsProbs: []float64{0.2, 0.6, 0.2},
		BeatBinCapMs:  10,
		ChokeWithNote: 42,
	}
}

func defaultSnare() *pattern.LayerConfig {
	return &pattern.LayerConfig{Steps: 16, Fills: 2, Rot: 4, Note: 38, Velocity: 96}
}

func defaultClap() *pattern.LayerConfig {
	return &pattern.LayerConfig{Steps: 16, Fills: 2, Rot: 4, Note: 39, Velocity: 92}
}
