package renderer

import (
	"context"
	"log/slog"
	"sync/atomic"

	"clearcolor/gfx"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger sets the package logger. By default nothing is logged; pass nil
// to restore that.
//
// Levels used:
//   - [slog.LevelDebug]: per-frame fence values and back buffer indices
//   - [slog.LevelInfo]: backend selection and init/teardown
//   - [slog.LevelWarn]: failures that terminate the renderer
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func propagateLogger(b gfx.Backend, l *slog.Logger) {
	if s, ok := b.(gfx.LoggerSetter); ok {
		s.SetLogger(l)
	}
}
