// Package log provides the structured logger used throughout the slab,
// stash, context, and peering packages: a small Logger interface wrapping
// go-kit/log, built directly on github.com/go-kit/kit/log.
package log

import (
	"os"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

// Logger is the minimal structured logging surface every long-lived
// component (Slab, Stash, Context, the peering Reactor) accepts at
// construction time.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
}

type kitLogger struct {
	base kitlog.Logger
}

// NewLogfmtLogger returns a Logger that writes logfmt lines to w.
func NewLogfmtLogger(w *os.File) Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	base = kitlog.With(base, "ts", kitlog.TimestampFormat(time.Now, time.RFC3339Nano))
	return &kitLogger{base: base}
}

// NewNopLogger returns a Logger that discards everything, used as the
// zero-value default and in tests that don't care about log output.
func NewNopLogger() Logger {
	return &kitLogger{base: kitlog.NewNopLogger()}
}

func (l *kitLogger) Debug(msg string, keyvals ...interface{}) {
	_ = kitlog.With(l.base, "level", "debug", "msg", msg).Log(keyvals...)
}

func (l *kitLogger) Info(msg string, keyvals ...interface{}) {
	_ = kitlog.With(l.base, "level", "info", "msg", msg).Log(keyvals...)
}

func (l *kitLogger) Error(msg string, keyvals ...interface{}) {
	_ = kitlog.With(l.base, "level", "error", "msg", msg).Log(keyvals...)
}

func (l *kitLogger) With(keyvals ...interface{}) Logger {
	return &kitLogger{base: kitlog.With(l.base, keyvals...)}
}
