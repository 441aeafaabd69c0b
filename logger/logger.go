// Package logger provides the zap loggers used across channels.
//
// Every package asks for a named child of one base logger:
//
//	var log = logger.Logger("registry")
//	log.Info("registering service", zap.String("name", addr.Name))
//
// The base logger writes info and above to stderr until SetBase replaces it,
// which cmd/channels does after reading the configuration.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base *zap.Logger
)

// New builds a logger at the given level ("debug", "info", "warn", "error").
// development switches to the console encoder with caller and stack traces.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// SetBase replaces the logger every subsystem logger derives from.
// Loggers obtained before the call keep writing to the previous base.
func SetBase(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// Base returns the current base logger.
func Base() *zap.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		l, err := New("info", false)
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	}
	return base
}

// Logger returns the logger for one subsystem.
func Logger(subsystem string) *zap.Logger {
	return Base().Named(subsystem)
}
