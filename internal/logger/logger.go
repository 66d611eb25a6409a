package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) slogLevel() slog.Level {
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

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the slog handler used for output.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger provides structured logging on top of log/slog.
type Logger struct {
	sl        *slog.Logger
	level     Level
	component string
}

var defaultLogger = New(os.Stdout, LevelInfo, "")

// New creates a JSON logger
func New(output io.Writer, level Level, component string) *Logger {
	return NewWithFormat(output, level, FormatJSON, component)
}

// NewWithFormat creates a logger with the given handler format.
func NewWithFormat(output io.Writer, level Level, format Format, component string) *Logger {
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.TimeKey:
					a.Key = "timestamp"
				case slog.MessageKey:
					a.Key = "message"
				case slog.LevelKey:
					a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{
		sl:        slog.New(handler),
		level:     level,
		component: component,
	}
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// WithComponent creates a new logger with the specified component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		sl:        l.sl,
		level:     l.level,
		component: component,
	}
}

// Writer returns an io.Writer that logs each line written to it at the given level.
// Subprocess stderr is routed here.
func (l *Logger) Writer(ctx context.Context, level Level, msg string, fields map[string]interface{}) io.WriteCloser {
	return &lineWriter{ctx: ctx, log: l, level: level, msg: msg, fields: fields}
}

func (l *Logger) log(ctx context.Context, level Level, msg string, fields map[string]interface{}, err error) {
	if level < l.level {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := make([]slog.Attr, 0, len(fields)+4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if requestID := apperrors.GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	if len(fields) > 0 {
		fieldAttrs := make([]any, 0, len(fields))
		for k, v := range fields {
			fieldAttrs = append(fieldAttrs, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("fields", fieldAttrs...))
	}

	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			parts := strings.Split(file, "/")
			if len(parts) > 2 {
				file = strings.Join(parts[len(parts)-2:], "/")
			}
			attrs = append(attrs, slog.String("caller", fmt.Sprintf("%s:%d", file, line)))
		}
	}

	if err != nil {
		errAttrs := []any{slog.String("message", err.Error())}
		if appErr, ok := apperrors.AsAppError(err); ok {
			errAttrs = append(errAttrs,
				slog.String("code", appErr.Code),
				slog.String("category", string(appErr.Category)))
		}
		attrs = append(attrs, slog.Group("error", errAttrs...))
	}

	l.sl.LogAttrs(ctx, level.slogLevel(), msg, attrs...)
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelDebug, msg, first(fields), nil)
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelInfo, msg, first(fields), nil)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelWarn, msg, first(fields), nil)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	l.log(ctx, LevelError, msg, first(fields), err)
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Package-level convenience functions

func Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	defaultLogger.Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	defaultLogger.Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	defaultLogger.Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	defaultLogger.Error(ctx, msg, err, fields...)
}
