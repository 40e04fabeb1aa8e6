// Package pattern builds timed percussion events for one layer from an
// onset mask plus the layer's static configuration: Euclidean fills,
// swing, micro-timing bins, ratchets, offbeat gating and hat chokes.
package pattern

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pulsemill/groove/euclid"
	"github.com/pulsemill/groove/markov"
	"github.com/pulsemill/groove/micro"
	"github.com/pulsemill/groove/timebase"
)

// LayerConfig is the static per-layer parameter set. The session receives
// a read view and clones a working copy per run when a modulator targets
// one of its fields.
type LayerConfig struct {
	Steps        int     `json:"steps"`
	Fills        int     `json:"fills"`
	Rot          int     `json:"rot"`
	Note         uint8   `json:"note"`
	Velocity     uint8   `json:"velocity"`
	SwingPercent float64 `json:"swing_percent,omitempty"` // 0 = no swing

	BeatBinsMs    []float64 `json:"beat_bins_ms,omitempty"`
	BeatBinsProbs []float64 `json:"beat_bins_probs,omitempty"`
	BeatBinCapMs  float64   `json:"beat_bin_cap_ms,omitempty"`
	MicroMs       float64   `json:"micro_ms,omitempty"`

	OffbeatsOnly  bool    `json:"offbeats_only,omitempty"`
	RatchetProb   float64 `json:"ratchet_prob,omitempty"`
	RatchetRepeat int     `json:"ratchet_repeat,omitempty"`
	ChokeWithNote uint8   `json:"choke_with_note,omitempty"` // 0 = no choke

	// Kick variation knobs, only honored when the guard allows a mutable kick.
	RotationRatePerBar float64 `json:"rotation_rate_per_bar,omitempty"`
	GhostPre1Prob      float64 `json:"ghost_pre1_prob,omitempty"`
	DisplaceInto2Prob  float64 `json:"displace_into_2_prob,omitempty"`

	Conditions []StepCondition `json:"conditions,omitempty"`
}

// Clone returns a deep copy the caller may mutate per bar.
func (c *LayerConfig) Clone() *LayerConfig {
	out := *c
	out.BeatBinsMs = append([]float64(nil), c.BeatBinsMs...)
	out.BeatBinsProbs = append([]float64(nil), c.BeatBinsProbs...)
	out.Conditions = append([]StepCondition(nil), c.Conditions...)
	return &out
}

// BaseMask returns the layer's rotated Euclidean onset mask.
func (c *LayerConfig) BaseMask() []int {
	return euclid.Rotate(euclid.Pattern(c.Steps, c.Fills), c.Rot)
}

// GhostVelocityScale is the velocity reduction applied to kick ghost hits.
const GhostVelocityScale = 0.5

// BuildBarEvents renders one bar's mask into events. ghostSteps marks
// slots that get the reduced ghost velocity. chokeTicks, if non-empty,
// truncates each event at the next choke onset after it (open hat closed
// by the next closed hat). Ticks are relative to barIdx's bar origin
// within the clip being built.
func BuildBarEvents(bpm float64, ppq, barIdx int, cfg *LayerConfig, mask []int, ghostSteps map[int]bool, rng *rand.Rand, chokeTicks []int) []Event {
	barTicks := timebase.TicksPerBar(ppq, 4)
	barStart := barIdx * barTicks
	stepSpan := float64(barTicks) / float64(cfg.Steps)

	var events []Event
	for step := 0; step < cfg.Steps && step < len(mask); step++ {
		if mask[step] == 0 {
			continue
		}
		if cfg.OffbeatsOnly && !markov.IsOffbeat(step) {
			continue
		}
		baseTick := barStart + int(math.Round(float64(step)*stepSpan))

		microMs := cfg.MicroMs
		if len(cfg.BeatBinsMs) > 0 && len(cfg.BeatBinsProbs) > 0 {
			microMs = micro.SampleBin(cfg.BeatBinsMs, cfg.BeatBinsProbs, rng)
		}
		startTick := micro.ApplySwingAndMicro(step, baseTick, cfg.SwingPercent, microMs, bpm, ppq, cfg.BeatBinCapMs)

		dur := int(math.Round(stepSpan * 0.5))
		if dur < 1 {
			dur = 1
		}

		vel := cfg.Velocity
		if ghostSteps[step] {
			vel = uint8(math.Round(float64(vel) * GhostVelocityScale))
		}

		if cfg.RatchetProb > 0 && rng.Float64() < cfg.RatchetProb {
			rep := cfg.RatchetRepeat
			if rep < 2 {
				rep = 2
			}
			sub := dur / rep
			if sub < 1 {
				sub = 1
			}
			for r := 0; r < rep; r++ {
				events = append(events, NewEvent(cfg.Note, vel, startTick+r*sub, sub))
			}
		} else {
			events = append(events, NewEvent(cfg.Note, vel, startTick, dur))
		}
	}

	if cfg.ChokeWithNote != 0 && len(chokeTicks) > 0 {
		events = chokeEvents(events, chokeTicks)
	}
	return events
}

// chokeEvents truncates each event at the first choke tick after its onset.
func chokeEvents(events []Event, chokeTicks []int) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		for _, ct := range chokeTicks {
			if ct > ev.StartTick {
				if d := ct - ev.StartTick; d < ev.DurTick {
					ev.DurTick = d
					if ev.DurTick < 1 {
						ev.DurTick = 1
					}
				}
				break
			}
		}
		out = append(out, ev)
	}
	return out
}

// BuildLayer renders a static layer over several bars from its Euclidean
// configuration, applying step conditions per bar. chokeTicksByBar maps
// bar index to the sorted choke onsets for that bar.
func BuildLayer(bpm float64, ppq, bars int, cfg *LayerConfig, rng *rand.Rand, chokeTicksByBar map[int][]int) []Event {
	base := cfg.BaseMask()
	var events []Event
	for bar := 0; bar < bars; bar++ {
		mask := append([]int(nil), base...)
		if len(cfg.Conditions) > 0 {
			mask = ApplyStepConditions(mask, bar, cfg.Conditions, rng)
		}
		events = append(events, BuildBarEvents(bpm, ppq, bar, cfg, mask, nil, rng, chokeTicksByBar[bar])...)
	}
	return events
}

// CollectNoteTicks maps bar index to the sorted onset ticks of one note,
// used to drive choke groups.
func CollectNoteTicks(events []Event, ppq int, note uint8) map[int][]int {
	barTicks := timebase.TicksPerBar(ppq, 4)
	byBar := make(map[int][]int)
	for _, ev := range events {
		if ev.Note != note {
			continue
		}
		b := ev.StartTick / barTicks
		byBar[b] = append(byBar[b], ev.StartTick)
	}
	for b := range byBar {
		sort.Ints(byBar[b])
	}
	return byBar
}

// MaskOf projects a bar of events back onto the 16-step grid.
func MaskOf(events []Event, ppq int) []int {
	barTicks := timebase.TicksPerBar(ppq, 4)
	stepTicks := barTicks / timebase.StepsPerBar
	mask := make([]int, timebase.StepsPerBar)
	for _, ev := range events {
		s := (ev.StartTick % barTicks) / stepTicks
		if s >= 0 && s < len(mask) {
			mask[s] = 1
		}
	}
	return mask
}
