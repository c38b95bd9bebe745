package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the process-wide slog handler. Debug level is
// only enabled when verbose is set.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
