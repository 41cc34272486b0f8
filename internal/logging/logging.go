// Package logging wraps go.uber.org/zap the way the teacher's pkg/logger
// does: a thin Logger exposing level methods that take a message plus
// variadic key/value pairs, backed by a SugaredLogger, with
// environment-aware encoder selection (JSON in production, console in
// development). Grounded on the teacher's call sites
// (internal/app/application.go: `app.log.Info("msg", "key", val)`,
// `app.log.Zap()`), since the teacher's pkg/logger source itself is not
// present in the retrieval pack.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the application-wide structured logger handle.
type Logger struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
}

// New builds a Logger for the given level ("debug", "info", "warn",
// "error") and environment ("production" selects JSON encoding and
// stack traces on error; anything else selects a human-readable
// console encoder).
func New(level string, environment string) *Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar(), base: base}
}

func (l *Logger) Debug(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *Logger) Info(msg string, keysAndValues ...any)  { l.sugar.Infow(msg, keysAndValues...) }
func (l *Logger) Warn(msg string, keysAndValues ...any)  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *Logger) Error(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }
func (l *Logger) Fatal(msg string, keysAndValues ...any) { l.sugar.Fatalw(msg, keysAndValues...) }

// Zap exposes the underlying *zap.Logger for collaborators (e.g.
// internal/tracing) that want the structured logger rather than the
// sugared convenience wrapper.
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// Sync flushes any buffered log entries. Call during shutdown.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
