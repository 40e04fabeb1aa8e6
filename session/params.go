package session

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pulsemill/groove/modulate"
	"github.com/pulsemill/groove/pattern"
	"github.com/pulsemill/groove/scale"
)

// ErrUnknownParamPath marks a modulator binding whose path does not
// resolve inside the configuration tree. Surfaced before any events are
// emitted.
var ErrUnknownParamPath = errors.New("unknown parameter path")

// binding is one resolved (path, modulator) pair. The dispatch table of
// setters is built once at session start, so the bar loop just steps the
// process and writes the value through.
type binding struct {
	spec  modulate.ParamSpec
	value float64
	set   func(float64)
}

// buildBindings resolves every ParamSpec against the session's working
// layer configs and controller state. Unknown roots, unknown fields and
// attempts to index through a scalar all fail fast.
func buildBindings(specs []modulate.ParamSpec, layers map[string]*pattern.LayerConfig, st *state) ([]*binding, error) {
	out := make([]*binding, 0, len(specs))
	for _, spec := range specs {
		set, err := resolvePath(spec.ParamPath, layers, st)
		if err != nil {
			return nil, err
		}
		out = append(out, &binding{
			spec:  spec,
			value: scale.Clamp(spec.Mod.Mid(), spec.Mod.Min, spec.Mod.Max),
			set:   set,
		})
	}
	return out, nil
}

func resolvePath(path string, layers map[string]*pattern.LayerConfig, st *state) (func(float64), error) {
	parts := strings.Split(path, ".")
	root := parts[0]

	// Bare controller scalars.
	if setter, ok := scalarSetters(st)[root]; ok {
		if len(parts) > 1 {
			return nil, fmt.Errorf("%w: %q indexes through scalar %q", ErrUnknownParamPath, path, root)
		}
		return setter, nil
	}

	cfg, ok := layers[root]
	if !ok {
		return nil, fmt.Errorf("%w: unknown root %q in %q", ErrUnknownParamPath, root, path)
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: %q must name a layer field as root.field", ErrUnknownParamPath, path)
	}
	setter, err := layerFieldSetter(cfg, parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownParamPath, path, err)
	}
	return setter, nil
}

func scalarSetters(st *state) map[string]func(float64) {
	return map[string]func(float64){
		"thin_bias": func(v float64) { st.thinBias = v },
		"swing":     func(v float64) { st.swing = v },
	}
}

func layerFieldSetter(cfg *pattern.LayerConfig, field string) (func(float64), error) {
	switch field {
	case "swing_percent":
		return func(v float64) { cfg.SwingPercent = v }, nil
	case "velocity":
		return func(v float64) {
			cfg.Velocity = uint8(scale.Clamp(math.Round(v), 1, 127))
		}, nil
	case "micro_ms":
		return func(v float64) { cfg.MicroMs = v }, nil
	case "ratchet_prob":
		return func(v float64) { cfg.RatchetProb = scale.Clamp(v, 0.0, 1.0) }, nil
	case "rotation_rate_per_bar":
		return func(v float64) { cfg.RotationRatePerBar = v }, nil
	case "ghost_pre1_prob":
		return func(v float64) { cfg.GhostPre1Prob = scale.Clamp(v, 0.0, 1.0) }, nil
	case "displace_into_2_prob":
		return func(v float64) { cfg.DisplaceInto2Prob = scale.Clamp(v, 0.0, 1.0) }, nil
	default:
		return nil, fmt.Errorf("no modulatable field %q", field)
	}
}
