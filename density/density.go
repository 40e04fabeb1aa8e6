// Package density keeps a layer's onset count inside a tolerance window
// around a target ratio, preferring metrically strong positions when it
// has to add or drop hits.
package density

import "sort"

// Enforce returns a copy of mask whose onset count lies within
// round(len*targetRatio) ± round(tol*len). Over-full masks lose their
// lowest-weighted onsets first; sparse masks gain onsets at the
// highest-weighted silent slots. Ties resolve by ascending slot index, so
// the result is deterministic for a given mask and weight table.
func Enforce(mask []int, targetRatio, tol float64, metricW []float64) []int {
	n := len(mask)
	out := make([]int, n)
	copy(out, mask)
	if n == 0 {
		return out
	}

	target := int(float64(n)*targetRatio + 0.5)
	allow := int(tol*float64(n) + 0.5)

	weight := func(i int) float64 {
		if i < len(metricW) {
			return metricW[i]
		}
		return 1.0
	}

	var on, off []int
	for i, v := range out {
		if v == 1 {
			on = append(on, i)
		} else {
			off = append(off, i)
		}
	}

	switch {
	case len(on) > target+allow:
		sort.SliceStable(on, func(a, b int) bool { return weight(on[a]) < weight(on[b]) })
		for _, i := range on[:len(on)-(target+allow)] {
			out[i] = 0
		}
	case len(on) < max(0, target-allow):
		sort.SliceStable(off, func(a, b int) bool { return weight(off[a]) > weight(off[b]) })
		need := (target - allow) - len(on)
		if need > len(off) {
			need = len(off)
		}
		for _, i := range off[:need] {
			out[i] = 1
		}
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
