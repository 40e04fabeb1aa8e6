// Package markov drives the hi-hat layers: a per-step probability vector
// nudged bar-to-bar by the feedback error, and a first-order sampler that
// turns the vector into an onset mask with a self-inhibition penalty on
// immediately adjacent hits.
package markov

import (
	"math/rand"

	"github.com/pulsemill/groove/scale"
)

// DefaultMetricWeights says how strongly each slot responds to the global
// syncopation error. Quarter-note beats are pinned at zero so the feedback
// loop can never push onsets off the grid anchors.
var DefaultMetricWeights = []float64{
	0.0, 0.6, 0.6, 0.6,
	0.0, 0.6, 0.6, 0.6,
	0.0, 0.6, 0.6, 0.6,
	0.0, 0.6, 0.6, 0.6,
}

// IsOffbeat reports whether a step index is a designated offbeat slot
// (the third 16th of each beat).
func IsOffbeat(step int) bool {
	return step%4 == 2
}

// UpdateProbabilities returns a new vector nudged toward the feedback
// target. Per slot: target = clamp(p + gain*err*weight), then the move is
// capped at deltaCap and the result clamped into [floor, ceil] again.
func UpdateProbabilities(probs []float64, syncErr float64, weights []float64, gain, deltaCap, floor, ceil float64) []float64 {
	out := make([]float64, len(probs))
	for i, prev := range probs {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		target := scale.Clamp(prev+gain*syncErr*w, floor, ceil)
		target = scale.ClampDelta(prev, target, deltaCap)
		out[i] = scale.Clamp(target, floor, ceil)
	}
	return out
}

// SampleMask draws a binary onset mask from the probability vector. When
// the previous slot came up active, the effective probability is scaled by
// (1 - stickiness). Offbeat-only layers skip non-offbeat slots entirely and
// reset the activity memory. Returns the mask and the final activity state,
// which the caller threads into the next bar.
func SampleMask(probs []float64, rng *rand.Rand, prevActive bool, offbeatsOnly bool, stickiness, floor, ceil float64) ([]int, bool) {
	mask := make([]int, len(probs))
	active := prevActive
	for i, base := range probs {
		if offbeatsOnly && !IsOffbeat(i) {
			active = false
			continue
		}
		p := scale.Clamp(base, floor, ceil)
		if active {
			p = scale.Clamp(p*(1.0-stickiness), floor, ceil)
		}
		if rng.Float64() < p {
			mask[i] = 1
			active = true
		} else {
			active = false
		}
	}
	return mask, active
}
