// Package logging wraps zap with console + rotating file output and
// automatic redaction of credentials before anything is written.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and redacts sensitive field values on every call.
//
// Example:
//
//	logger, err := NewLogger(true, "gateway.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("server started", zap.Int("port", 8000))
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger

	// isDevelopment selects the coloured console encoder
	isDevelopment bool

	// logFilePath is empty for loggers not backed by a file
	logFilePath string
}

// Option customises NewLogger.
type Option func(*options)

type options struct {
	level      *zapcore.Level
	fileConfig FileWriterConfig
}

// WithLevel overrides the level derived from the development flag.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) {
		o.level = &level
	}
}

// WithFileConfig overrides the rotation settings of the log file.
func WithFileConfig(cfg FileWriterConfig) Option {
	return func(o *options) {
		o.fileConfig = cfg
	}
}

// NewLogger creates a Logger that writes to stdout and to a rotating file.
//
// Development mode logs at debug level with a coloured console encoder.
// Production mode logs at info level with JSON on both outputs. The file is
// always JSON and rotated by lumberjack (100MB, 5 backups, 30 days).
func NewLogger(isDevelopment bool, logFilePath string, opts ...Option) (*Logger, error) {
	o := options{fileConfig: DefaultFileWriterConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	level := zapcore.InfoLevel
	if isDevelopment {
		level = zapcore.DebugLevel
	}
	if o.level != nil {
		level = *o.level
	}

	core, err := NewMultiCore(level, logFilePath, isDevelopment, o.fileConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create log core: %w", err)
	}

	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)

	return &Logger{
		zap:           zapLogger,
		sugar:         zapLogger.Sugar(),
		isDevelopment: isDevelopment,
		logFilePath:   logFilePath,
	}, nil
}

// FromZap wraps an existing zap.Logger. Used by tests with an observer core.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{
		zap:   z.WithOptions(zap.AddCallerSkip(1)),
		sugar: z.WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return FromZap(zap.NewNop())
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactFields(fields)...)
}

// Info logs at InfoLevel.
//
//	logger.Info("image persisted",
//	    zap.String("path", "/out/1700000000_0.png"))
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactFields(fields)...)
}

// Warn logs at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactFields(fields)...)
}

// Error logs at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactFields(fields)...)
}

// Infow logs loosely-typed key-value pairs at InfoLevel.
//
//	logger.Infow("profile loaded", "path", path, "profiles", 3)
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, redactKeysAndValues(keysAndValues)...)
}

// With returns a child logger that adds fields to every entry.
//
//	reqLogger := logger.With(zap.String("request_id", id))
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.zap.With(redactFields(fields)...)
	return &Logger{
		zap:           child,
		sugar:         child.Sugar(),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named adds a sub-logger name, shown under the "source" key.
func (l *Logger) Named(name string) *Logger {
	child := l.zap.Named(name)
	return &Logger{
		zap:           child,
		sugar:         child.Sugar(),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap returns the underlying zap.Logger for libraries that want one.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment reports whether the console uses the human-readable encoder.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the path to the log file.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}

	if field.Type == zapcore.StringType {
		redacted := RedactSensitiveData(field.String)
		if redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	}

	return field
}

func redactKeysAndValues(keysAndValues []interface{}) []interface{} {
	if len(keysAndValues) == 0 {
		return keysAndValues
	}

	result := make([]interface{}, len(keysAndValues))
	copy(result, keysAndValues)

	// even indices are keys, odd indices are values
	for i := 0; i < len(result)-1; i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}

		if IsSensitiveField(key) {
			result[i+1] = RedactedPlaceholder
			continue
		}

		if value, ok := result[i+1].(string); ok {
			result[i+1] = RedactSensitiveData(value)
		}
	}

	return result
}
