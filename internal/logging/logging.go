// Package logging provides the structured logger used across the storage
// layer, built on zap. Payloads that may carry secrets are wrapped with
// Sensitive so the sink only ever sees a redaction marker.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper over zap that the storage layer depends on.
type Logger struct {
	z *zap.Logger
}

// New builds a production or development logger. Unknown env values get the
// production config.
func New(env string) (*Logger, error) {
	var cfg zap.Config
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// FromZap wraps an existing zap logger, for callers that manage their own
// cores (observers, custom sinks).
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...zap.Field) { l.z.Info(msg, fields...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.z.Warn(msg, fields...) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// redactedValue is what a Sensitive field renders as, regardless of sink.
const redactedValue = "[REDACTED]"

// Sensitive wraps a value so that log output never contains it. The wrapped
// value is dropped at field construction time, not at encode time, so no
// encoder configuration can leak it.
func Sensitive(key string, _ any) zap.Field {
	return zap.String(key, redactedValue)
}
