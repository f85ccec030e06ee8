package observability

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs a process-wide structured logger. level is one of
// debug|info|warn|error; format is json|text.
func SetupLogger(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Component returns a logger scoped to a single pipeline subsystem, e.g.
// Component("scheduler").Info("mode change", "stream_id", id). This is the
// structured-field equivalent of the bracketed "[scheduler]" log prefixes
// the rest of the pipeline's taxonomy uses.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
