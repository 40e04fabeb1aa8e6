package session

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// WriteTelemetry persists the per-bar metrics as a CSV log with columns
// bar,E,S,hat_density,hat_entropy. The series is buffered during the run
// and flushed here in one pass, so logging never perturbs the loop.
func WriteTelemetry(path string, rows []BarMetrics) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating telemetry dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating telemetry log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"bar", "E", "S", "hat_density", "hat_entropy"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.Bar),
			formatFloat(r.E),
			formatFloat(r.S),
			formatFloat(r.HatDensity),
			formatFloat(r.HatEntropy),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
