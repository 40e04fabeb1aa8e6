package pattern

import (
	"math/rand"

	"github.com/pulsemill/groove/scale"
)

// CondKind is a step-condition gate type.
type CondKind string

const (
	// CondProb passes with probability P.
	CondProb CondKind = "PROB"
	// CondPre passes when the previous raw step was active.
	CondPre CondKind = "PRE"
	// CondNotPre passes when the previous raw step was silent.
	CondNotPre CondKind = "NOT_PRE"
	// CondFill passes on the EveryN schedule (used for fill bars).
	CondFill CondKind = "FILL"
	// CondEveryN passes when the 1-indexed bar matches n/offset.
	CondEveryN CondKind = "EVERY_N"
)

// StepCondition gates the onsets of a layer mask. All conditions on a
// layer must pass for a step to survive.
type StepCondition struct {
	Kind   CondKind `json:"kind"`
	P      float64  `json:"p,omitempty"`
	N      int      `json:"n,omitempty"`
	Offset int      `json:"offset,omitempty"`
	Negate bool     `json:"negate,omitempty"`
}

// EveryN reports whether a 1-indexed bar falls on the schedule
// offset, offset+n, offset+2n, ...
func EveryN(bar1Idx, n, offset int) bool {
	if n <= 0 {
		return false
	}
	if bar1Idx < maxInt(1, offset) {
		return false
	}
	return (bar1Idx-offset)%n == 0
}

// ApplyStepConditions filters a bar's mask through the condition stack.
// PRE/NOT_PRE look at the raw input mask, not the filtered output.
func ApplyStepConditions(mask []int, barIdx int, conditions []StepCondition, rng *rand.Rand) []int {
	if len(conditions) == 0 {
		return mask
	}
	out := append([]int(nil), mask...)
	prevRaw := 0
	bar1 := barIdx + 1
	for step := range out {
		raw := mask[step]
		if raw == 0 {
			prevRaw = raw
			continue
		}
		allowed := true
		for _, cond := range conditions {
			result := true
			switch cond.Kind {
			case CondProb:
				result = rng.Float64() < cond.P
			case CondPre:
				result = prevRaw == 1
			case CondNotPre:
				result = prevRaw == 0
			case CondFill, CondEveryN:
				result = EveryN(bar1, cond.N, cond.Offset)
			}
			if cond.Negate {
				result = !result
			}
			if !result {
				allowed = false
				break
			}
		}
		if !allowed {
			out[step] = 0
		}
		prevRaw = raw
	}
	return out
}

// MaskFromSteps builds a mask with the given slots active.
func MaskFromSteps(stepsOn []int, steps int) []int {
	m := make([]int, steps)
	for _, s := range stepsOn {
		if s >= 0 && s < steps {
			m[s] = 1
		}
	}
	return m
}

// StepsFromMask lists the active slot indices.
func StepsFromMask(mask []int) []int {
	var out []int
	for i, v := range mask {
		if v != 0 {
			out = append(out, i)
		}
	}
	return out
}

// MuteNearKick zeroes steps within ±window of any active kick step,
// wrapping around the bar.
func MuteNearKick(mask, kickMask []int, window int) []int {
	steps := len(mask)
	out := append([]int(nil), mask...)
	for k, v := range kickMask {
		if v == 0 {
			continue
		}
		for d := -window; d <= window; d++ {
			out[((k+d)%steps+steps)%steps] = 0
		}
	}
	return out
}

// Refractory removes onsets that violate a minimum gap in steps since the
// last surviving onset.
func Refractory(mask []int, refractorySteps int) []int {
	if refractorySteps <= 0 {
		return mask
	}
	out := append([]int(nil), mask...)
	last := -1 << 30
	for i, v := range mask {
		if v == 0 {
			continue
		}
		if i-last <= refractorySteps {
			out[i] = 0
		} else {
			last = i
		}
	}
	return out
}

// ThinProbsNearKick returns per-step keep probabilities biased down near
// kick onsets: a negative bias lowers the chance of a hat surviving within
// ±window of a kick.
func ThinProbsNearKick(baseProb float64, steps int, kickMask []int, window int, bias float64) []float64 {
	probs := make([]float64, steps)
	for i := range probs {
		probs[i] = baseProb
	}
	for k, v := range kickMask {
		if v == 0 {
			continue
		}
		for d := -window; d <= window; d++ {
			idx := ((k+d)%steps + steps) % steps
			probs[idx] = scale.Clamp(probs[idx]+bias, 0.0, 1.0)
		}
	}
	return probs
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
