// Package logging wraps go.uber.org/zap with the typed-field style of the
// teacher's pkg/state/logger.go, trimmed to the fields the store actually
// emits: op_id, author, index, path, state_hash. A Logger is a no-op by
// default — callers opt in to real output via New or NewZap, same as the
// teacher's DefaultLogger/NoOpLogger split.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging field, constructed by the typed helpers
// below rather than built by hand at call sites.
type Field struct {
	Key   string
	Value any
}

// TypedField narrows Field's Value to the types the store actually logs,
// mirroring the teacher's TypedField[T] without carrying its full
// SafeXxx constructor surface.
type TypedField[T ~string | ~int | ~int64 | ~uint64 | ~float64 | ~bool] struct {
	Key   string
	Value T
}

func (f TypedField[T]) toZap() zap.Field { return zap.Any(f.Key, f.Value) }

// ErrorField wraps an error under a named key (usually "error").
type ErrorField struct {
	Key   string
	Value error
}

func (f ErrorField) toZap() zap.Field { return zap.Error(f.Value) }

func String(key, value string) Field  { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }
func Any(key string, value any) Field         { return Field{Key: key, Value: value} }
func Err(err error) Field                     { return Field{Key: "error", Value: err} }

// Domain-specific field constructors used throughout pkg/savestate and
// pkg/osmstore.
func OpID(s string) Field       { return String("op_id", s) }
func Author(s string) Field     { return String("author", s) }
func Index(i uint64) Field      { return Uint64("index", i) }
func Path(s string) Field       { return String("path", s) }
func StateHash(s string) Field  { return String("state_hash", s) }
func SavePointID(s string) Field { return String("save_point_id", s) }

// Logger is the structured logging interface consumed by the rest of the
// module. Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

type zapLogger struct {
	l *zap.Logger
}

// NewZap wraps an existing *zap.Logger.
func NewZap(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{l: l}
}

// New builds a production JSON zap.Logger at the given level
// ("debug"|"info"|"warn"|"error"; defaults to info on a bad value).
func New(level string) Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return NoOp()
	}
	return &zapLogger{l: l}
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, toZapFields(fields)...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, toZapFields(fields)...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, toZapFields(fields)...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, toZapFields(fields)...) }
func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(toZapFields(fields)...)}
}

type noopLogger struct{}

// NoOp returns a Logger that discards everything — the module-wide
// default so embedding the store never forces log output on a consumer.
func NoOp() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...Field)   {}
func (noopLogger) Info(string, ...Field)    {}
func (noopLogger) Warn(string, ...Field)    {}
func (noopLogger) Error(string, ...Field)   {}
func (noopLogger) With(...Field) Logger     { return noopLogger{} }
