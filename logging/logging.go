// Package logging provides the small structured-logging facade threaded
// through every compilation-request-scoped object in this module, modeled
// on the teacher's Scope.Log/Scope.Trace convenience methods (see
// scope.go, types/scope.go in the retrieval pack) but backed by
// go.uber.org/zap instead of the bare standard-library logger.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the facade consumed by the schema retriever
// (schema.NewRetriever).
type Logger interface {
	Log(format string, args ...interface{})
	Trace(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New wraps a *zap.SugaredLogger. Passing nil gives a no-op logger.
func New(sugar *zap.SugaredLogger) Logger {
	if sugar == nil {
		return Nop()
	}
	return &zapLogger{sugar: sugar}
}

// NewDevelopment builds a human-readable development logger, convenient
// for the _demo CLI and for tests.
func NewDevelopment() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return Nop()
	}
	return New(l.Sugar())
}

func (z *zapLogger) Log(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *zapLogger) Trace(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *zapLogger) Warn(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

type nopLogger struct{}

func (nopLogger) Log(string, ...interface{})   {}
func (nopLogger) Trace(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

// Nop returns a Logger that discards everything, used as the default when
// a caller doesn't wire one in (mirrors the teacher's nil-Logger check in
// Scope.Log).
func Nop() Logger { return nopLogger{} }
