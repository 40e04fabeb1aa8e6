package timebase

import (
	"fmt"
	"math"
)

// StepsPerBar is the logical grid resolution: 16th notes in a 4/4 bar.
const StepsPerBar = 16

// TicksPerSecond returns the tick rate for the given resolution and tempo.
// One quarter note lasts 60/BPM seconds, so the rate is PPQ * BPM / 60.
func TicksPerSecond(ppq int, bpm float64) float64 {
	return float64(ppq) * bpm / 60.0
}

// TicksPerMs returns the number of ticks in one millisecond.
func TicksPerMs(ppq int, bpm float64) float64 {
	return TicksPerSecond(ppq, bpm) / 1000.0
}

// MsToTicks converts milliseconds to integer ticks, rounded to nearest.
func MsToTicks(ms float64, ppq int, bpm float64) int {
	return int(math.Round(ms * TicksPerMs(ppq, bpm)))
}

// TicksToMs converts ticks to milliseconds.
func TicksToMs(ticks int, ppq int, bpm float64) float64 {
	return float64(ticks) / TicksPerMs(ppq, bpm)
}

// TicksPerBeat returns the ticks in one quarter note.
func TicksPerBeat(ppq int) int {
	return ppq
}

// TicksPerBar returns the ticks in one bar for the given time signature
// numerator (quarter-note beats per bar).
func TicksPerBar(ppq, beatsPerBar int) int {
	return TicksPerBeat(ppq) * beatsPerBar
}

// Grid holds the tick-domain constants for one session. It is derived once
// from (ppq, bpm) and never changes mid-session.
type Grid struct {
	PPQ       int
	BPM       float64
	BarTicks  int
	StepTicks int
	TickPerMs float64
}

// NewGrid validates the tempo parameters and computes the grid constants
// for a 4/4 bar of 16 steps.
func NewGrid(ppq int, bpm float64) (Grid, error) {
	if ppq <= 0 {
		return Grid{}, fmt.Errorf("ppq must be positive, got %d", ppq)
	}
	if bpm <= 0 {
		return Grid{}, fmt.Errorf("bpm must be positive, got %v", bpm)
	}
	barTicks := TicksPerBar(ppq, 4)
	return Grid{
		PPQ:       ppq,
		BPM:       bpm,
		BarTicks:  barTicks,
		StepTicks: barTicks / StepsPerBar,
		TickPerMs: TicksPerMs(ppq, bpm),
	}, nil
}

// StepOf returns the 16th-step index of an absolute tick within its bar.
func (g Grid) StepOf(absTick int) int {
	within := absTick % g.BarTicks
	return within / g.StepTicks
}

// BarOf returns the bar index of an absolute tick.
func (g Grid) BarOf(absTick int) int {
	return absTick / g.BarTicks
}
