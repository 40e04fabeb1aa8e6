// Package euclid generates Euclidean rhythm masks using Bjorklund's
// algorithm: k pulses distributed as evenly as possible across n steps.
package euclid

// Pattern returns a 0/1 onset mask of length steps with pulses ones.
// Degenerate inputs are clamped: pulses <= 0 yields all zeros and
// pulses >= steps yields all ones.
func Pattern(steps, pulses int) []int {
	if steps <= 0 {
		return nil
	}
	mask := make([]int, steps)
	if pulses <= 0 {
		return mask
	}
	if pulses >= steps {
		for i := range mask {
			mask[i] = 1
		}
		return mask
	}

	var counts, remainders []int
	divisor := steps - pulses
	remainders = append(remainders, pulses)
	level := 0
	for {
		counts = append(counts, divisor/remainders[level])
		remainders = append(remainders, divisor%remainders[level])
		divisor = remainders[level]
		level++
		if remainders[level] <= 1 {
			break
		}
	}
	counts = append(counts, divisor)

	var build func(lvl int) []int
	build = func(lvl int) []int {
		if lvl == -1 {
			return []int{0}
		}
		if lvl == -2 {
			return []int{1}
		}
		var res []int
		for i := 0; i < counts[lvl]; i++ {
			res = append(res, build(lvl-1)...)
		}
		if remainders[lvl] != 0 {
			res = append(res, build(lvl-2)...)
		}
		return res
	}

	pattern := build(level)
	// The recursion may come up short; repeat and trim to length.
	for i := 0; i < steps; i++ {
		mask[i] = pattern[i%len(pattern)]
	}
	return mask
}

// Rotate returns mask rotated left-to-right by rot positions (circular).
// The input is not modified.
func Rotate(mask []int, rot int) []int {
	steps := len(mask)
	out := make([]int, steps)
	if steps == 0 {
		return out
	}
	r := ((rot % steps) + steps) % steps
	for i, v := range mask {
		out[(i+r)%steps] = v
	}
	return out
}
