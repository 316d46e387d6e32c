// Package log wraps log/slog with the component tagging and field names
// used across the board server and worker.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is a slog.Logger that stamps every record with a component.
type Logger struct {
	*slog.Logger
	component string
	base      *slog.Logger
}

type Config struct {
	Level     slog.Leveler
	Component string
	Format    string // "text" or "json"
	Output    io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
		Format:    "text",
		Output:    os.Stdout,
	}
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	component := cfg.Component
	if component == "" {
		component = ComponentApp
	}
	base := slog.New(handler)
	return &Logger{
		Logger:    base.With(FieldComponent, component),
		component: component,
		base:      base,
	}
}

// Wrap adopts an existing slog.Logger.
func Wrap(l *slog.Logger, component string) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{Logger: l.With(FieldComponent, component), component: component, base: l}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component, base: l.base}
}

// WithComponent returns a child tagged with a different component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.base.With(FieldComponent, component), component: component, base: l.base}
}

func (l *Logger) Component() string {
	return l.component
}

// Fields logs msg at level with a prepared field set.
func (l *Logger) Fields(ctx context.Context, level slog.Level, msg string, f LogFields) {
	l.Logger.Log(ctx, level, msg, f.ToSlice()...)
}

// SetDefault installs the logger without its component, since package level
// log calls name their own.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.base)
}
