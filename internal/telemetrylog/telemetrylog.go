// Package telemetrylog writes the machine-readable CSV snapshot trail kept
// alongside the structured event log, grounded in
// original_source/drone/core/telemetry_logger.py's TelemetryLogger. Row shape
// and flush-every-write behavior are carried over directly; encoding/csv is
// used deliberately rather than a third-party writer since nothing in the
// example pack reaches for one for flat tabular logging (see DESIGN.md).
package telemetrylog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skyward-ops/mobfleet/internal/model"
)

var header = []string{
	"timestamp", "mission_phase", "drone_id",
	"pos_x", "pos_y", "pos_z",
	"battery", "vehicle_mode",
	"detection_count", "best_det_source", "best_det_confidence",
	"best_det_img_x", "best_det_img_y",
}

// Logger appends one CSV row per call to LogSnapshot, flushing immediately
// so a crash never loses the most recent row.
type Logger struct {
	file   *os.File
	writer *csv.Writer
}

// Open creates (or truncates) a timestamped CSV file under dir and writes
// the header row.
func Open(dir string, now time.Time) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating telemetry log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("telemetry_%s.csv", now.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry log file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing telemetry log header: %w", err)
	}
	w.Flush()

	return &Logger{file: f, writer: w}, nil
}

// LogSnapshot appends one row describing a drone's state and its strongest
// current detection, if any.
func (l *Logger) LogSnapshot(ts time.Time, phase model.Phase, droneID string, t model.Telemetry, detections []model.Detection) error {
	var best *model.Detection
	for i := range detections {
		if best == nil || detections[i].Confidence > best.Confidence {
			best = &detections[i]
		}
	}

	row := []string{
		fmt.Sprintf("%.3f", float64(ts.UnixNano())/1e9),
		string(phase),
		droneID,
		fmt.Sprintf("%.2f", t.Position.X),
		fmt.Sprintf("%.2f", t.Position.Y),
		fmt.Sprintf("%.2f", t.Position.Z),
		fmt.Sprintf("%.2f", t.BatteryPct),
		string(t.Mode),
		fmt.Sprintf("%d", len(detections)),
		"N/A", "0.00", "0", "0",
	}
	if best != nil {
		row[9] = best.Source
		row[10] = fmt.Sprintf("%.2f", best.Confidence)
		row[11] = fmt.Sprintf("%d", best.PixelX)
		row[12] = fmt.Sprintf("%d", best.PixelY)
	}

	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("writing telemetry row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.writer.Flush()
	return l.file.Close()
}
