package slime

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/slime/config"
	"github.com/gogpu/slime/internal/compute"
	"github.com/gogpu/slime/internal/pipecache"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for slime and all its sub-packages.
// By default slime produces no log output. Pass nil to restore silence.
//
// Log levels used by slime:
//   - [slog.LevelDebug]: per-dispatch and per-compile detail
//   - [slog.LevelInfo]: lifecycle (images allocated, stage ready)
//   - [slog.LevelWarn]: rejected resize, settings reload failures
//   - [slog.LevelError]: kernel compilation failures
//
// Example:
//
//	slime.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	compute.SetLogger(l)
	pipecache.SetLogger(l)
	config.SetLogger(l)
	hal.SetLogger(l)
}

// Logger returns the current logger used by slime.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }
