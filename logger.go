// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidflow

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called while frames are in flight on other goroutines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for vidflow and all its sub-packages.
// By default, vidflow produces no log output.
//
// Pass nil to restore the default silent behavior.
//
// Log levels used by vidflow:
//   - [slog.LevelDebug]: per-frame diagnostics (dropped frames, duplicate timestamps, benchmark figures)
//   - [slog.LevelInfo]: lifecycle events (capture started, recording stopped, device selected)
//   - [slog.LevelWarn]: recoverable failures (allocation failure, buffer exhaustion, over-release)
//
// Example:
//
//	vidflow.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by vidflow.
// Sub-packages call this at the log site so that SetLogger takes effect
// without re-wiring any component.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
