package pattern

import (
	"math/rand"

	"github.com/pulsemill/groove/euclid"
)

// KickBarMask builds one bar's kick mask. With an immutable kick the
// rotated Euclidean base is returned untouched. A mutable kick applies the
// probability-gated variations: displacing a main hit two 16ths forward
// and adding a low-velocity ghost one 16th before a main hit. Every
// variation keeps at least one onset in each quarter-beat window.
//
// The returned ghost set marks the slots that carry ghost velocity.
func KickBarMask(cfg *LayerConfig, rot int, immutable bool, rng *rand.Rand) ([]int, map[int]bool) {
	mask := euclid.Rotate(euclid.Pattern(cfg.Steps, cfg.Fills), rot)
	if immutable {
		return mask, nil
	}

	steps := cfg.Steps
	mains := StepsFromMask(mask)

	// Displacement: push a main hit into the "2" position of its beat.
	// Only hits that stay inside their quarter window may move, so the
	// one-onset-per-window invariant holds by construction.
	if cfg.DisplaceInto2Prob > 0 {
		for _, k := range mains {
			target := k + 2
			if target >= steps || target/4 != k/4 || mask[target] == 1 {
				continue
			}
			if rng.Float64() < cfg.DisplaceInto2Prob {
				mask[k] = 0
				mask[target] = 1
			}
		}
	}

	// Ghost hits: a soft pickup one 16th before each surviving main hit.
	ghosts := make(map[int]bool)
	if cfg.GhostPre1Prob > 0 {
		for _, k := range StepsFromMask(mask) {
			pre := ((k-1)%steps + steps) % steps
			if mask[pre] == 1 {
				continue
			}
			if rng.Float64() < cfg.GhostPre1Prob {
				mask[pre] = 1
				ghosts[pre] = true
			}
		}
	}
	if len(ghosts) == 0 {
		ghosts = nil
	}
	return mask, ghosts
}
