package scale

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to the interval [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampDelta limits next so that it moves at most maxDelta away from prev.
func ClampDelta(prev, next, maxDelta float64) float64 {
	if math.Abs(next-prev) <= maxDelta {
		return next
	}
	return prev + math.Copysign(maxDelta, next-prev)
}

// ToUnit scales a number from the interval [rMin,rMax] to the unit interval,
// clamping results that fall outside [0,1].
func ToUnit(v, rMin, rMax float64) float64 {
	if rMax == rMin {
		return 0
	}
	return Clamp((v-rMin)/(rMax-rMin), 0.0, 1.0)
}
