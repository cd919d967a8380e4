package logger

import "chordring/internal/chordid"

// Field represents one structured key/value pair.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal interface required by routingtable, transport,
// and the state machine.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F is a concise helper for building a Field.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FHash serializes a ring identifier as a readable structured field.
func FHash(key string, h chordid.Hash) Field {
	return Field{Key: key, Val: h.ToHexString()}
}

// ----------------------------------------------------------------
// NopLogger is a Logger implementation that does nothing.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger          { return l }
func (l *NopLogger) With(fields ...Field) Logger       { return l }
func (l *NopLogger) Debug(msg string, fields ...Field) {}
func (l *NopLogger) Info(msg string, fields ...Field)  {}
func (l *NopLogger) Warn(msg string, fields ...Field)  {}
func (l *NopLogger) Error(msg string, fields ...Field) {}
