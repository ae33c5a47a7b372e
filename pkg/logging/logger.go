// Package logging wraps log/slog with the small surface the rest of the
// application uses: component-scoped loggers and typed field helpers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds logging configuration.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
	Output string // "stdout", "stderr", or a file path
}

// DefaultConfig returns JSON logging at info level on stdout.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout"}
}

// Field is a typed key/value pair attached to a log line.
type Field = slog.Attr

func String(key, val string) Field               { return slog.String(key, val) }
func Int(key string, val int) Field              { return slog.Int(key, val) }
func Int64(key string, val int64) Field          { return slog.Int64(key, val) }
func Float64(key string, val float64) Field      { return slog.Float64(key, val) }
func Bool(key string, val bool) Field            { return slog.Bool(key, val) }
func Duration(key string, d time.Duration) Field { return slog.Duration(key, d) }
func Any(key string, val any) Field              { return slog.Any(key, val) }

// Err attaches an error under the conventional "error" key.
func Err(err error) Field {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Logger provides structured logging with a fixed component attribute.
type Logger struct {
	sl   *slog.Logger
	file *os.File
}

// New creates a logger from config. File outputs are opened append-only;
// the directory is created when missing.
func New(cfg Config) (*Logger, error) {
	var writer io.Writer
	var file *os.File
	switch cfg.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writer = f
		file = f
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return &Logger{sl: slog.New(handler), file: file}, nil
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *Logger {
	return &Logger{sl: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// WithComponent returns a logger whose lines carry a component attribute.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{sl: l.sl.With(slog.String("component", name)), file: l.file}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields...) }

func (l *Logger) log(level slog.Level, msg string, fields ...Field) {
	l.sl.LogAttrs(context.Background(), level, msg, fields...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
