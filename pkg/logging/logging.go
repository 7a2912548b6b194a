// Package logging configures the process-wide slog logger used by the
// task execution core.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs a global slog logger bound to taskID and returns it.
// Output is JSON when TASKEXEC_JSON_LOG is truthy, text otherwise.
func Init(taskID string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("TASKEXEC_JSON_LOG"))
	var handler slog.Handler
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}
	if mode == "1" || mode == "true" || mode == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("task_id", taskID)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", mode == "1" || mode == "true" || mode == "json")
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("TASKEXEC_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
