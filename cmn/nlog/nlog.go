// Package nlog is the agent's leveled, named logger. It mirrors the shape
// of aistore's cmn/nlog (seen at call sites as nlog.Infoln, nlog.Errorf)
// over the standard library's log/slog instead of a hand-rolled sink —
// every component gets a named logger via nlog.Named("component").
package nlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	base    = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	levelMu sync.Mutex
	level   = new(slog.LevelVar)
)

func init() {
	level.Set(slog.LevelInfo)
	base = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel adjusts the process-wide minimum log level (debug, info, warn,
// error).
func SetLevel(l slog.Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	level.Set(l)
}

// Logger is a named leveled logger bound to one component.
type Logger struct {
	name string
	l    *slog.Logger
}

// Named returns a Logger tagged with component, e.g. nlog.Named("ingest").
func Named(component string) *Logger {
	mu.RLock()
	b := base
	mu.RUnlock()
	return &Logger{name: component, l: b.With("component", component)}
}

func (lg *Logger) Infoln(args ...interface{})                 { lg.l.Info(sprint(args...)) }
func (lg *Logger) Infof(format string, args ...interface{})   { lg.l.Info(sprintf(format, args...)) }
func (lg *Logger) Warnln(args ...interface{})                 { lg.l.Warn(sprint(args...)) }
func (lg *Logger) Warnf(format string, args ...interface{})   { lg.l.Warn(sprintf(format, args...)) }
func (lg *Logger) Errorln(args ...interface{})                { lg.l.Error(sprint(args...)) }
func (lg *Logger) Errorf(format string, args ...interface{})  { lg.l.Error(sprintf(format, args...)) }
func (lg *Logger) Debugln(args ...interface{})                { lg.l.Debug(sprint(args...)) }
func (lg *Logger) Debugf(format string, args ...interface{})  { lg.l.Debug(sprintf(format, args...)) }

// With returns a derived logger carrying additional structured fields, e.g.
// log.With("slideId", id).Infoln("registered").
func (lg *Logger) With(args ...interface{}) *Logger {
	return &Logger{name: lg.name, l: lg.l.With(args...)}
}

func (lg *Logger) InfoContext(ctx context.Context, msg string, args ...interface{}) {
	lg.l.InfoContext(ctx, msg, args...)
}

func sprint(args ...interface{}) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return fmt.Sprint(args...)
}

func sprintf(format string, args ...interface{}) string { return fmt.Sprintf(format, args...) }
