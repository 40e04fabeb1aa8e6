// Package preview prints a colored terminal view of a rendered session:
// one row per bar showing the 16-step union grid, the control metrics and
// any rescue marks.
package preview

import (
	"fmt"
	"io"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/pulsemill/groove/pattern"
	"github.com/pulsemill/groove/session"
	"github.com/pulsemill/groove/timebase"
)

var (
	coldColor = colorful.Color{R: 0.25, G: 0.45, B: 0.95}
	hotColor  = colorful.Color{R: 0.95, G: 0.35, B: 0.2}
)

// heatANSI maps t in [0,1] onto a truecolor escape along the cold-hot
// gradient.
func heatANSI(t float64) string {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	c := coldColor.BlendLuv(hotColor, t).Clamped()
	r, g, b := c.RGB255()
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm", r, g, b)
}

const ansiReset = "\x1b[0m"

// barMasks buckets the union of all layers into one 16-step mask per bar.
func barMasks(events map[string][]pattern.Event, ppq, bars int) [][]int {
	barTicks := timebase.TicksPerBar(ppq, 4)
	stepTicks := barTicks / timebase.StepsPerBar
	masks := make([][]int, bars)
	for i := range masks {
		masks[i] = make([]int, timebase.StepsPerBar)
	}
	for _, evs := range events {
		for _, ev := range evs {
			tick := ev.StartTick
			if tick < 0 {
				tick = 0
			}
			bar := tick / barTicks
			if bar >= bars {
				continue
			}
			step := (tick % barTicks) / stepTicks
			masks[bar][step] = 1
		}
	}
	return masks
}

// RenderSession writes the per-bar grid. Cell heat follows syncopation so
// busier, more off-grid bars read hotter; beats carry a column marker.
func RenderSession(w io.Writer, res *session.Result, ppq, bars int) error {
	rescued := make(map[int]bool, len(res.RescueBars))
	for _, b := range res.RescueBars {
		rescued[b] = true
	}

	var header strings.Builder
	header.WriteString("bar  ")
	for s := 0; s < timebase.StepsPerBar; s++ {
		if s%4 == 0 {
			header.WriteString("| ")
		} else {
			header.WriteString("  ")
		}
	}
	header.WriteString("  E      S      rescue\n")
	if _, err := io.WriteString(w, header.String()); err != nil {
		return err
	}

	masks := barMasks(res.EventsByLayer, ppq, bars)
	for bar := 0; bar < bars && bar < len(res.EByBar); bar++ {
		var row strings.Builder
		fmt.Fprintf(&row, "%3d  ", bar)
		heat := heatANSI(res.SByBar[bar])
		for _, on := range masks[bar] {
			if on == 1 {
				row.WriteString(heat + "● " + ansiReset)
			} else {
				row.WriteString("· ")
			}
		}
		fmt.Fprintf(&row, "  %.3f  %.3f", res.EByBar[bar], res.SByBar[bar])
		if rescued[bar] {
			row.WriteString("  !")
		}
		row.WriteString("\n")
		if _, err := io.WriteString(w, row.String()); err != nil {
			return err
		}
	}
	return nil
}
