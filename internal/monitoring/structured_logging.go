package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// LogFormat represents the output format for logs
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
	FormatConsole
)

// ParseFormat maps a format name ("json", "text", "console") to a LogFormat.
func ParseFormat(s string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "console":
		return FormatConsole, nil
	}
	return FormatJSON, fmt.Errorf("unknown log format %q", s)
}

// StructuredLogger wraps slog with a fixed set of fields and helpers for
// crypto, key and security events. It never receives key material.
type StructuredLogger struct {
	logger *slog.Logger
	level  LogLevel
	fields map[string]any
}

// LoggerConfig configures the structured logger
type LoggerConfig struct {
	Level     LogLevel
	Format    LogFormat
	Output    io.Writer
	Component string
	Fields    map[string]any
}

// NewStructuredLogger creates a new structured logger with the given configuration
func NewStructuredLogger(config LoggerConfig) *StructuredLogger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	fields := make(map[string]any, len(config.Fields)+2)
	for k, v := range config.Fields {
		fields[k] = v
	}
	if config.Component != "" {
		fields["component"] = config.Component
	}
	fields["service"] = "medcrypt"

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.Level == LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	case FormatConsole:
		handler = NewConsoleHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return &StructuredLogger{
		logger: slog.New(handler),
		level:  config.Level,
		fields: fields,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StructuredLogger {
	return NewStructuredLogger(LoggerConfig{Level: LevelError, Output: io.Discard})
}

// WithFields returns a new logger with additional fields
func (l *StructuredLogger) WithFields(fields map[string]any) *StructuredLogger {
	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &StructuredLogger{
		logger: l.logger,
		level:  l.level,
		fields: newFields,
	}
}

// Fields returns a copy of the logger's bound fields.
func (l *StructuredLogger) Fields() map[string]any {
	out := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

func (l *StructuredLogger) Debug(msg string, args ...any) {
	if l.level > LevelDebug {
		return
	}
	l.log(context.Background(), LevelDebug, msg, args...)
}

func (l *StructuredLogger) Info(msg string, args ...any) {
	if l.level > LevelInfo {
		return
	}
	l.log(context.Background(), LevelInfo, msg, args...)
}

func (l *StructuredLogger) Warn(msg string, args ...any) {
	if l.level > LevelWarn {
		return
	}
	l.log(context.Background(), LevelWarn, msg, args...)
}

func (l *StructuredLogger) Error(msg string, args ...any) {
	l.log(context.Background(), LevelError, msg, args...)
}

func (l *StructuredLogger) log(ctx context.Context, level LogLevel, msg string, args ...any) {
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys)+1)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, l.fields[k]))
	}
	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			attrs = append(attrs, slog.String("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
		}
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.LogAttrs(ctx, level.slogLevel(), msg, attrs...)
}

// LogCryptoOperation logs a crypto operation with standard fields
func (l *StructuredLogger) LogCryptoOperation(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	fields := map[string]any{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}
	for k, v := range metadata {
		fields[k] = v
	}
	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Error("crypto operation failed")
		return
	}
	l.WithFields(fields).Info("crypto operation completed")
}

// LogKeyOperation logs a key management operation
func (l *StructuredLogger) LogKeyOperation(ctx context.Context, operation string, ownerID string, metadata map[string]any) {
	fields := map[string]any{
		"operation": operation,
		"owner_id":  ownerID,
	}
	for k, v := range metadata {
		fields[k] = v
	}
	l.WithFields(fields).Info("key operation performed")
}

// LogSecurityEvent logs a security-related event. Severity "critical" and
// "high" log at error level, "medium" at warn, anything else at info.
func (l *StructuredLogger) LogSecurityEvent(ctx context.Context, event string, severity string, metadata map[string]any) {
	fields := map[string]any{
		"event":    event,
		"severity": severity,
	}
	for k, v := range metadata {
		fields[k] = v
	}

	logger := l.WithFields(fields)
	switch severity {
	case "critical", "high":
		logger.Error("security event")
	case "medium":
		logger.Warn("security event")
	default:
		logger.Info("security event")
	}
}

// ConsoleHandler provides colorized console output
type ConsoleHandler struct {
	handler slog.Handler
	output  io.Writer
	attrs   []slog.Attr
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(output io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	return &ConsoleHandler{
		handler: slog.NewTextHandler(output, opts),
		output:  output,
	}
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *ConsoleHandler) Handle(ctx context.Context, record slog.Record) error {
	var levelStr string
	switch record.Level {
	case slog.LevelDebug:
		levelStr = "\033[36mDEBUG\033[0m"
	case slog.LevelInfo:
		levelStr = "\033[32mINFO\033[0m"
	case slog.LevelWarn:
		levelStr = "\033[33mWARN\033[0m"
	case slog.LevelError:
		levelStr = "\033[31mERROR\033[0m"
	default:
		levelStr = record.Level.String()
	}

	fmt.Fprintf(h.output, "%s [%s] %s", record.Time.Format("15:04:05.000"), levelStr, record.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(h.output, " %s=%s", a.Key, a.Value)
	}
	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.output, " %s=%s", a.Key, a.Value)
		return true
	})
	_, err := fmt.Fprintln(h.output)
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ConsoleHandler{
		handler: h.handler.WithAttrs(attrs),
		output:  h.output,
		attrs:   merged,
	}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{
		handler: h.handler.WithGroup(name),
		output:  h.output,
		attrs:   h.attrs,
	}
}
