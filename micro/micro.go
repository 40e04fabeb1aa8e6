// Package micro handles the sub-grid timing of onsets: even-16th swing
// and small millisecond-scale offsets drawn from weighted bins.
package micro

import (
	"math"
	"math/rand"

	"github.com/pulsemill/groove/timebase"
)

// SampleBin draws a micro offset (ms) from discrete bins using the given
// probabilities. Probabilities are treated as cumulative slices of the
// unit interval; the last bin absorbs any remainder.
func SampleBin(binsMs, probs []float64, rng *rand.Rand) float64 {
	if len(binsMs) == 0 {
		return 0
	}
	r := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r <= acc && i < len(binsMs) {
			return binsMs[i]
		}
	}
	return binsMs[len(binsMs)-1]
}

// ApplySwingAndMicro maps a step index and base tick to a final tick.
//
// Swing delays odd 16ths: 0.5 is straight, 0.55 delays off-16ths by
// (0.05 * ppq/8) ticks. Swing values at or below 0.5 never pull a hit
// earlier. The micro offset is clamped in magnitude to capMs (when
// positive) before conversion to ticks.
func ApplySwingAndMicro(stepIdx, baseTick int, swingPct, microMs, bpm float64, ppq int, capMs float64) int {
	tick := baseTick

	if swingPct > 0 && stepIdx%2 == 1 {
		swingTicks := int(math.Round((swingPct - 0.5) * (float64(ppq) / 8.0)))
		if swingTicks > 0 {
			tick += swingTicks
		}
	}

	if capMs > 0 {
		if microMs > capMs {
			microMs = capMs
		} else if microMs < -capMs {
			microMs = -capMs
		}
	}

	return tick + timebase.MsToTicks(microMs, ppq, bpm)
}
