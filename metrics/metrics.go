// Package metrics computes the closed-loop rhythm observables: entrainment
// and syncopation over a bar's union mask, onset density, Bernoulli
// entropy, and the micro-timing measures used to police humanization caps.
package metrics

import (
	"math"
	"sort"

	"github.com/pulsemill/groove/pattern"
	"github.com/pulsemill/groove/scale"
	"github.com/pulsemill/groove/timebase"
)

// UnionMaskForBar folds every event onto the 16-step grid of its own bar.
func UnionMaskForBar(events []pattern.Event, ppq int) []int {
	return pattern.MaskOf(events, ppq)
}

// EntrainmentSyncopation scores a bar's union mask.
//
// E rewards coverage of the regular grids: 1.0 when both the quarter grid
// and all 16 slots are filled, 0.9 for a complete quarter grid, 0.85 for
// full 16th coverage alone, otherwise a floor of 0.7 plus the fraction of
// quarter anchors present.
//
// S is the mean positional weight of the active slots: beats count 0,
// 8th-note offbeats 0.4, everything else 0.65. Both land in [0,1].
func EntrainmentSyncopation(mask []int) (float64, float64) {
	steps := len(mask)
	if steps == 0 {
		return 0, 0
	}
	beats := [4]int{0, steps / 4, steps / 2, 3 * steps / 4}
	beatSet := map[int]bool{beats[0]: true, beats[1]: true, beats[2]: true, beats[3]: true}
	offbeats := map[int]bool{
		steps / 8:     true,
		3 * steps / 8: true,
		5 * steps / 8: true,
		7 * steps / 8: true,
	}

	beatHits := 0
	total := 0
	for _, b := range beats {
		beatHits += mask[b]
	}
	for _, v := range mask {
		total += v
	}

	var e float64
	switch {
	case beatHits == 4 && total == steps:
		e = 1.0
	case beatHits == 4:
		e = 0.9
	case total == steps:
		e = 0.85
	default:
		e = 0.7 + 0.3*(float64(beatHits)/4.0)
	}

	sum := 0.0
	active := 0
	for i, v := range mask {
		if v == 0 {
			continue
		}
		active++
		switch {
		case beatSet[i]:
			// beats weigh nothing
		case offbeats[i]:
			sum += 0.4
		default:
			sum += 0.65
		}
	}
	s := 0.0
	if active > 0 {
		s = sum / float64(active)
	}
	return scale.Clamp(e, 0.0, 1.0), scale.Clamp(s, 0.0, 1.0)
}

// Density is the fraction of active slots.
func Density(mask []int) float64 {
	if len(mask) == 0 {
		return 0
	}
	on := 0
	for _, v := range mask {
		on += v
	}
	return float64(on) / float64(len(mask))
}

// Entropy is the Bernoulli entropy of the mask's activity ratio in bits,
// zero for an empty or saturated mask.
func Entropy(mask []int) float64 {
	p := Density(mask)
	if p == 0 || p == 1 {
		return 0
	}
	return -(p*math.Log2(p) + (1-p)*math.Log2(1-p))
}

// MicroOffsetsMs measures each event's distance from the nearest 16th grid
// point in milliseconds, swing included. Used for RMS checks against the
// configured caps.
func MicroOffsetsMs(events []pattern.Event, ppq int, bpm float64, note uint8) []float64 {
	barTicks := timebase.TicksPerBar(ppq, 4)
	stepTicks := barTicks / timebase.StepsPerBar
	tpm := timebase.TicksPerMs(ppq, bpm)

	var out []float64
	for _, ev := range events {
		if ev.Note != note {
			continue
		}
		within := ev.StartTick % stepTicks
		delta := within
		if within > stepTicks/2 {
			delta = within - stepTicks
		}
		out = append(out, float64(delta)/tpm)
	}
	return out
}

// RMS returns the root mean square of the values, zero when empty.
func RMS(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(vals)))
}

// Dispersion is the normalized inter-onset-interval variance of a note
// layer across a whole clip (variance over squared mean), a scale-free
// measure of how uneven the layer's spacing is.
func Dispersion(events []pattern.Event, note uint8) float64 {
	var ticks []int
	for _, ev := range events {
		if ev.Note == note {
			ticks = append(ticks, ev.StartTick)
		}
	}
	if len(ticks) < 3 {
		return 0
	}
	sort.Ints(ticks)
	iois := make([]float64, 0, len(ticks)-1)
	mean := 0.0
	for i := 1; i < len(ticks); i++ {
		d := float64(ticks[i] - ticks[i-1])
		iois = append(iois, d)
		mean += d
	}
	mean /= float64(len(iois))
	if mean <= 0 {
		return 0
	}
	variance := 0.0
	for _, d := range iois {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(iois))
	return variance / (mean * mean)
}
