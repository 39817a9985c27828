// Package observability provides Prometheus metrics and the command-line
// logger. The service logger comes from storm-data-shared/observability.
package observability

import (
	"io"
	"log/slog"
)

// NewTextLogger builds a text logger on w, for command-line tools that keep
// stdout for their own output. Unknown levels fall back to info.
func NewTextLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
