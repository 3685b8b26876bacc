package internal

import (
	"log/slog"

	"github.com/cdot/Squirrel-sub002/internal/clock"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	clock  clock.Clock
	logger *slog.Logger
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithLogger replaces the JSON stdout logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}
