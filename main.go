package main

import (
	"flag"
	"os"
	"time"

	"k8s.io/utils/clock"

	"github.com/pulsemill/groove/config"
	"github.com/pulsemill/groove/logger"
	"github.com/pulsemill/groove/midifile"
	"github.com/pulsemill/groove/preview"
	"github.com/pulsemill/groove/session"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON engine config")
	out := flag.String("out", "", "override the rendered MIDI file path")
	seed := flag.Int64("seed", 0, "override the session seed")
	bars := flag.Int("bars", 0, "override the bar count")
	showPreview := flag.Bool("preview", false, "print the bar grid after rendering")
	flag.Parse()

	// initialize the logger
	log := logger.GetProjectLogger()

	cfg := config.NewEngineConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("error loading config. err='%v'", err)
		}
	}
	if *out != "" {
		cfg.Out = *out
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *bars > 0 {
		cfg.Bars = *bars
	}

	cl := clock.RealClock{}
	start := cl.Now()

	log.Infof("Rendering %d bars at %.1f BPM (seed %d)...", cfg.Bars, cfg.BPM, cfg.Seed)
	res, err := session.Run(cfg.SessionConfig())
	if err != nil {
		log.Fatalf("session failed. err='%v'", err)
	}

	if err := midifile.WriteFile(cfg.Out, res.EventsByLayer, session.LayerNames, cfg.BPM, cfg.PPQ); err != nil {
		log.Fatalf("error writing MIDI file. err='%v'", err)
	}
	log.Infof("Wrote %s in %s (%d rescues)", cfg.Out, cl.Since(start).Round(time.Millisecond), res.Rescues)

	if *showPreview {
		if err := preview.RenderSession(os.Stdout, res, cfg.PPQ, cfg.Bars); err != nil {
			log.Errorf("error rendering preview. err='%v'", err)
		}
	}
}
