package testhelpers

import (
	"io"
	"log/slog"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
