// Package obslog wraps log/slog with the drone_id / topic attributes that
// recur across every mission-kernel log line, modeled on the correlated
// logger in engine/telemetry/logging (the ariadne reference repo) but
// without that package's OpenTelemetry trace-ID correlation, which this
// system has no tracer provider to supply.
package obslog

import (
	"log/slog"
	"os"
)

// New builds a slog.Logger writing JSON or text records at the given level,
// generalizing the teacher's LoggingConfig{Level, Format} into a
// log/slog handler selection.
func New(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// ForDrone returns a child logger with drone_id bound as a permanent attribute.
func ForDrone(base *slog.Logger, droneID string) *slog.Logger {
	return base.With(slog.String("drone_id", droneID))
}

// ForTopic returns a child logger with topic bound as a permanent attribute,
// used by bus handlers so every dropped/handled message line is traceable to
// the topic it came from.
func ForTopic(base *slog.Logger, topic string) *slog.Logger {
	return base.With(slog.String("topic", topic))
}
