package pattern

import (
	"math"
	"math/rand"

	"github.com/fogleman/ease"
	"github.com/pulsemill/groove/timebase"
)

// AccentProfile is a global accent lane: on the configured steps
// (1-indexed), with probability Prob, every event on that step gets its
// velocity and length scaled. An optional easing curve shapes how strongly
// the accent lands across the bar.
type AccentProfile struct {
	Steps1Idx     []int   `json:"steps"`
	Prob          float64 `json:"prob"`
	VelocityScale float64 `json:"velocity_scale"`
	LengthScale   float64 `json:"length_scale"`
	Curve         string  `json:"curve,omitempty"`
}

var accentCurves = map[string]func(float64) float64{
	"linear":      ease.Linear,
	"in-quad":     ease.InQuad,
	"in-quart":    ease.InQuart,
	"out-cubic":   ease.OutCubic,
	"in-out-sine": ease.InOutSine,
}

// velocityScaleAt returns the accent's velocity scale for a step,
// interpolating toward full strength along the configured curve.
func (p *AccentProfile) velocityScaleAt(step int) float64 {
	fn, ok := accentCurves[p.Curve]
	if !ok {
		return p.VelocityScale
	}
	t := float64(step) / float64(timebase.StepsPerBar-1)
	return 1.0 + (p.VelocityScale-1.0)*fn(t)
}

// ApplyAccent applies the accent lane to a bar-ordered event list. The
// probability gate is decided once per (bar, step) pair so simultaneous
// events on a slot accent together.
func ApplyAccent(events []Event, ppq int, profile *AccentProfile, rng *rand.Rand) []Event {
	if profile == nil || len(profile.Steps1Idx) == 0 {
		return events
	}
	steps0 := make(map[int]bool, len(profile.Steps1Idx))
	for _, s := range profile.Steps1Idx {
		if s >= 1 {
			steps0[s-1] = true
		}
	}
	barTicks := timebase.TicksPerBar(ppq, 4)
	stepTicks := barTicks / timebase.StepsPerBar

	type key struct{ bar, step int }
	gates := make(map[key]bool)

	out := make([]Event, 0, len(events))
	for _, ev := range events {
		bar := ev.StartTick / barTicks
		step := (ev.StartTick % barTicks) / stepTicks
		k := key{bar, step}
		gate, seen := gates[k]
		if !seen {
			gate = steps0[step] && rng.Float64() < profile.Prob
			gates[k] = gate
		}
		if gate {
			vel := int(math.Round(float64(ev.Velocity) * profile.velocityScaleAt(step)))
			if vel > 127 {
				vel = 127
			}
			ev.Velocity = uint8(vel)
			ev.DurTick = maxInt(1, int(math.Round(float64(ev.DurTick)*profile.LengthScale)))
		}
		out = append(out, ev)
	}
	return out
}
