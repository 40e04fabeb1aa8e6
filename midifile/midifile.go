// Package midifile renders session events to a standard MIDI file, one
// track per layer plus a tempo track.
package midifile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/pulsemill/groove/pattern"
)

// message is a note on/off pinned to an absolute tick. prio orders
// note-offs before note-ons on the same tick so back-to-back hits on one
// note never get swallowed by the preceding release.
type message struct {
	tick int
	prio int
	msg  midi.Message
}

// Render builds an SMF from per-layer event streams. layerOrder fixes the
// track order; layers absent from events are skipped. Events scheduled
// before tick zero (negative micro pull on the first step) are clamped to
// the file start.
func Render(events map[string][]pattern.Event, layerOrder []string, bpm float64, ppq int) (*smf.SMF, error) {
	if ppq <= 0 || bpm <= 0 {
		return nil, fmt.Errorf("invalid transport: bpm=%v ppq=%d", bpm, ppq)
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ppq)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return nil, fmt.Errorf("adding tempo track: %w", err)
	}

	for _, name := range layerOrder {
		evs := events[name]
		if len(evs) == 0 {
			continue
		}
		if err := sm.Add(layerTrack(evs)); err != nil {
			return nil, fmt.Errorf("adding track for %s: %w", name, err)
		}
	}
	return sm, nil
}

func layerTrack(events []pattern.Event) smf.Track {
	msgs := make([]message, 0, 2*len(events))
	for _, ev := range events {
		start := ev.StartTick
		if start < 0 {
			start = 0
		}
		dur := ev.DurTick
		if dur < 1 {
			dur = 1
		}
		msgs = append(msgs,
			message{tick: start, prio: 1, msg: midi.NoteOn(ev.Channel, ev.Note, ev.Velocity)},
			message{tick: start + dur, prio: 0, msg: midi.NoteOff(ev.Channel, ev.Note)},
		)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		return msgs[i].prio < msgs[j].prio
	})

	var track smf.Track
	last := 0
	for _, m := range msgs {
		delta := m.tick - last
		if delta < 0 {
			delta = 0
		}
		track.Add(uint32(delta), m.msg)
		last = m.tick
	}
	track.Close(0)
	return track
}

// WriteFile renders and writes the events, creating the output directory
// when needed.
func WriteFile(path string, events map[string][]pattern.Event, layerOrder []string, bpm float64, ppq int) error {
	sm, err := Render(events, layerOrder, bpm, ppq)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	if err := sm.WriteFile(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
