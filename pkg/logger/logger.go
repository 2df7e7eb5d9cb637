package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

type LogFields map[string]interface{}

type Logger interface {
	WithFields(fields LogFields) Logger

	Info(action, message string)
	Debug(action, message string)
	Warn(action, message string)
	Error(action string, err error)
}

// zapLogger writes one JSON object per entry through zap.
// Every entry carries the service, hostname and action keys.
type zapLogger struct {
	core *zap.Logger
}

// NewLogger creates a structured JSON logger for a service at INFO level.
func NewLogger(serviceName string) Logger {
	return NewLoggerWithLevel(serviceName, string(LevelInfo))
}

// NewLoggerWithLevel is NewLogger with an explicit minimum level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func NewLoggerWithLevel(serviceName, level string) Logger {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:    "message",
		LevelKey:      "level",
		TimeKey:       "timestamp",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeDuration: func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendFloat64(float64(d) / float64(time.Millisecond))
		},
	}

	cfg := &zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}

	core, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		panic(fmt.Sprintf("failed to build zap logger: %v", err))
	}

	return &zapLogger{
		core: core.With(zap.String("service", serviceName), zap.String("hostname", host)),
	}
}

// NewNop returns a logger that drops everything. Used by tests.
func NewNop() Logger {
	return &zapLogger{core: zap.NewNop()}
}

// WithFields returns a logger that adds fields to every entry.
// Keys are applied in sorted order so output is stable.
func (l *zapLogger) WithFields(fields LogFields) Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zf = append(zf, toField(k, fields[k]))
	}
	return &zapLogger{core: l.core.With(zf...)}
}

func (l *zapLogger) Info(action, message string) {
	l.core.Info(message, zap.String("action", action))
}

func (l *zapLogger) Debug(action, message string) {
	l.core.Debug(message, zap.String("action", action))
}

func (l *zapLogger) Warn(action, message string) {
	l.core.Warn(message, zap.String("action", action))
}

// Error logs err at ERROR level; zap attaches the stack trace.
func (l *zapLogger) Error(action string, err error) {
	if err == nil {
		return
	}
	l.core.Error(err.Error(), zap.String("action", action), zap.Error(err))
}

// toField picks a typed zap field for the common value kinds.
func toField(key string, val interface{}) zap.Field {
	switch v := val.(type) {
	case string:
		return zap.String(key, v)
	case bool:
		return zap.Bool(key, v)
	case int:
		return zap.Int(key, v)
	case int32:
		return zap.Int32(key, v)
	case int64:
		return zap.Int64(key, v)
	case float64:
		return zap.Float64(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case error:
		return zap.NamedError(key, v)
	case fmt.Stringer:
		return zap.String(key, v.String())
	default:
		return zap.Any(key, v)
	}
}
