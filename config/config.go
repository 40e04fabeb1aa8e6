// Package config loads engine configuration from JSON files and fills in
// the stock defaults for anything a file leaves out.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pulsemill/groove/modulate"
	"github.com/pulsemill/groove/pattern"
	"github.com/pulsemill/groove/session"
)

// Layers groups the optional per-layer overrides. A nil layer keeps the
// stock kit piece.
type Layers struct {
	Kick      *pattern.LayerConfig `json:"kick,omitempty"`
	HatClosed *pattern.LayerConfig `json:"hat_c,omitempty"`
	HatOpen   *pattern.LayerConfig `json:"hat_o,omitempty"`
	Snare     *pattern.LayerConfig `json:"snare,omitempty"`
	Clap      *pattern.LayerConfig `json:"clap,omitempty"`
}

// EngineConfig represents options that configure a full render: transport,
// layer overrides, control targets and modulator routings.
type EngineConfig struct {
	BPM  float64 `json:"bpm"`
	PPQ  int     `json:"ppq"`
	Bars int     `json:"bars"`
	Seed int64   `json:"seed"`

	// Out is the rendered MIDI file path.
	Out string `json:"out"`
	// LogPath, when set, receives the per-bar telemetry CSV.
	LogPath string `json:"log_path,omitempty"`

	Layers  Layers                 `json:"layers,omitempty"`
	Targets *session.Targets       `json:"targets,omitempty"`
	Guard   *session.Guard         `json:"guard,omitempty"`
	Accent  *pattern.AccentProfile `json:"accent,omitempty"`

	Modulators []modulate.ParamSpec `json:"modulators,omitempty"`
}

// NewEngineConfig returns a config with reasonable defaults for real usage.
func NewEngineConfig() EngineConfig {
	return EngineConfig{
		BPM:  132,
		PPQ:  1920,
		Bars: 8,
		Seed: 1234,
		Out:  "out/render.mid",
	}
}

// Load reads a JSON config file. Missing fields keep their defaults and
// unknown keys are ignored.
func Load(path string) (EngineConfig, error) {
	cfg := NewEngineConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects transport values the session would refuse anyway, so
// the error points at the config file rather than the run.
func (c EngineConfig) Validate() error {
	if c.BPM <= 0 {
		return fmt.Errorf("bpm must be positive, got %v", c.BPM)
	}
	if c.PPQ <= 0 {
		return fmt.Errorf("ppq must be positive, got %d", c.PPQ)
	}
	if c.Bars <= 0 {
		return fmt.Errorf("bars must be positive, got %d", c.Bars)
	}
	for _, spec := range c.Modulators {
		if spec.ParamPath == "" {
			return fmt.Errorf("modulator %q needs a param_path", spec.Name)
		}
	}
	return nil
}

// SessionConfig maps the file-level config onto a runnable session.
func (c EngineConfig) SessionConfig() session.Config {
	return session.Config{
		BPM:       c.BPM,
		PPQ:       c.PPQ,
		Bars:      c.Bars,
		Seed:      c.Seed,
		Targets:   c.Targets,
		Guard:     c.Guard,
		Kick:      c.Layers.Kick,
		HatClosed: c.Layers.HatClosed,
		HatOpen:   c.Layers.HatOpen,
		Snare:     c.Layers.Snare,
		Clap:      c.Layers.Clap,
		ParamMods: c.Modulators,
		Accent:    c.Accent,
		LogPath:   c.LogPath,
	}
}
