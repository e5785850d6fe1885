package main

import (
	"io"
	"log/slog"
)

// newLogger returns a text logger on w. Verbosity 0 logs at info and
// anything higher at debug.
func newLogger(verbosity int, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbosity > 0 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
