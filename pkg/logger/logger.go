// Package logger is a thin structured-logging layer over zerolog. Callers pass
// typed fields so log keys stay consistent across packages.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
}

type Logger struct {
	zl zerolog.Logger
}

// New builds a logger from cfg. A nil cfg means info-level JSON on stdout.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(4).Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// NewWriter builds a JSON logger on w without caller info.
func NewWriter(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	c := l.zl.With()
	for _, f := range fields {
		c = f.with(c)
	}
	return &Logger{zl: c.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { write(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { write(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { write(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { write(l.zl.Error(), msg, fields) }

func write(e *zerolog.Event, msg string, fields []Field) {
	// disabled level
	if e == nil {
		return
	}
	for _, f := range fields {
		f.add(e)
	}
	e.Msg(msg)
}

// Field is one typed key/value pair.
type Field struct {
	add  func(*zerolog.Event)
	with func(zerolog.Context) zerolog.Context
}

func String(key, v string) Field {
	return Field{
		add:  func(e *zerolog.Event) { e.Str(key, v) },
		with: func(c zerolog.Context) zerolog.Context { return c.Str(key, v) },
	}
}

func Int(key string, v int) Field {
	return Field{
		add:  func(e *zerolog.Event) { e.Int(key, v) },
		with: func(c zerolog.Context) zerolog.Context { return c.Int(key, v) },
	}
}

func Int64(key string, v int64) Field {
	return Field{
		add:  func(e *zerolog.Event) { e.Int64(key, v) },
		with: func(c zerolog.Context) zerolog.Context { return c.Int64(key, v) },
	}
}

func Bool(key string, v bool) Field {
	return Field{
		add:  func(e *zerolog.Event) { e.Bool(key, v) },
		with: func(c zerolog.Context) zerolog.Context { return c.Bool(key, v) },
	}
}

func Any(key string, v any) Field {
	return Field{
		add:  func(e *zerolog.Event) { e.Interface(key, v) },
		with: func(c zerolog.Context) zerolog.Context { return c.Interface(key, v) },
	}
}

// Error logs err under "error". A nil err adds nothing.
func Error(err error) Field {
	return Field{
		add:  func(e *zerolog.Event) { e.Err(err) },
		with: func(c zerolog.Context) zerolog.Context { return c.Err(err) },
	}
}

// Duration logs d in whole milliseconds.
func Duration(key string, d time.Duration) Field {
	return Int64(key, d.Milliseconds())
}

// Date logs the calendar part of t as YYYY-MM-DD.
func Date(key string, t time.Time) Field {
	return String(key, t.Format(time.DateOnly))
}
