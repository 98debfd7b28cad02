package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithRun returns a logger with run context fields attached.
// Use this for all logging within a flow run.
func WithRun(runID, automationID, userID string) *slog.Logger {
	return slog.With(
		"run_id", runID,
		"automation_id", automationID,
		"user_id", userID,
	)
}

// WithBlock returns a logger scoped to a specific block within a run.
func WithBlock(logger *slog.Logger, blockID, blockKind string) *slog.Logger {
	return logger.With(
		"block_id", blockID,
		"block_kind", blockKind,
	)
}
