// Package modulate implements bounded scalar stochastic processes that
// drive humanization parameters one bar at a time. Every process is
// clamped to its [Min,Max] range and to a maximum per-bar delta, so
// consecutive values can never jump audibly.
package modulate

import (
	"math"
	"math/rand"

	"github.com/pulsemill/groove/scale"
)

// Mode selects the stochastic process a Modulator runs.
type Mode string

const (
	// ModeRandomWalk adds a uniform step in [-StepPerBar, StepPerBar].
	ModeRandomWalk Mode = "random_walk"
	// ModeOU is a mean-reverting Ornstein-Uhlenbeck process pulled toward
	// the middle of [Min,Max] with gaussian noise.
	ModeOU Mode = "ou"
	// ModeSine is a deterministic periodic sweep across [Min,Max].
	ModeSine Mode = "sine"
)

// Modulator describes one bounded process. It carries parameters only;
// the current value lives with the owner and is threaded through Step.
type Modulator struct {
	Name           string  `json:"name,omitempty"`
	Mode           Mode    `json:"mode"`
	Min            float64 `json:"min_val"`
	Max            float64 `json:"max_val"`
	StepPerBar     float64 `json:"step_per_bar"`
	Tau            float64 `json:"tau,omitempty"`
	MaxDeltaPerBar float64 `json:"max_delta_per_bar"`
	Phase          float64 `json:"phase,omitempty"`
}

// Step advances the process by one bar and returns the new value. The
// result is clamped to [Min,Max] first, then the move away from value is
// capped at MaxDeltaPerBar.
func (m Modulator) Step(value float64, barIdx int, rng *rand.Rand) float64 {
	next := value
	switch m.Mode {
	case ModeRandomWalk:
		next = value + (rng.Float64()*2-1)*m.StepPerBar
	case ModeOU:
		mid := 0.5 * (m.Min + m.Max)
		theta := 1.0 / math.Max(1e-6, m.Tau)
		next = value + theta*(mid-value) + rng.NormFloat64()*m.StepPerBar
	case ModeSine:
		phase := math.Mod(m.Phase+float64(barIdx)/math.Max(1e-6, m.Tau), 1.0)
		next = m.Min + 0.5*(1+math.Sin(2*math.Pi*phase))*(m.Max-m.Min)
	}

	next = scale.Clamp(next, m.Min, m.Max)
	return scale.ClampDelta(value, next, m.MaxDeltaPerBar)
}

// Mid returns the midpoint of the modulator's range, used as the default
// seed value for a fresh process.
func (m Modulator) Mid() float64 {
	return 0.5 * (m.Min + m.Max)
}

// ParamSpec binds a modulator to a scalar field inside the per-layer
// configuration tree, addressed by a dotted path such as
// "hat_c.swing_percent" or the bare root "thin_bias". The session
// resolves the path against a dispatch table at startup and rejects
// unknown paths before any events are emitted.
type ParamSpec struct {
	Name      string    `json:"name"`
	ParamPath string    `json:"param_path"`
	Mod       Modulator `json:"mod"`
}
