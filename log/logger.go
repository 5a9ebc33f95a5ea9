// Package log provides structured logging with attempt context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for tracking and close-out paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/runledger/types"
)

// Logger provides structured logging with attempt context.
// All entries carry job_id and attempt, plus connection_id and
// workspace_id when they are known.
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:     "timestamp",
	LevelKey:    "level",
	MessageKey:  "message",
	EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
	EncodeLevel: zapcore.LowercaseLevelEncoder,
}

// NewLogger creates a new logger with attempt context.
// Output defaults to os.Stderr.
func NewLogger(meta *types.AttemptMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := newCore(w)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

func newCore(w io.Writer) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

func newLoggerWithWriter(meta *types.AttemptMeta, w io.Writer) *Logger {
	contextFields := []zap.Field{
		zap.String("job_id", meta.JobID),
		zap.Int("attempt", meta.AttemptNumber),
	}
	if meta.ConnectionID != "" {
		contextFields = append(contextFields, zap.String("connection_id", meta.ConnectionID))
	}
	if meta.WorkspaceID != "" {
		contextFields = append(contextFields, zap.String("workspace_id", meta.WorkspaceID))
	}

	return &Logger{zap: zap.New(newCore(w)).With(contextFields...)}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
