// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging provides the structured logger shared by every thermoremote
// component.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels accepted by New
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Logger wraps zap's SugaredLogger
type Logger struct {
	*zap.SugaredLogger
}

// Options selects level and destination
type Options struct {
	Level string
	// File, when set, receives log output instead of stderr. The control
	// TUI owns the terminal, so it logs here or nowhere.
	File string
	// Discard drops all output. Takes precedence over File.
	Discard bool
}

// ParseLevel converts a textual level to a zapcore.Level
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel, nil
	case InfoLevel, "":
		return zapcore.InfoLevel, nil
	case WarnLevel:
		return zapcore.WarnLevel, nil
	case ErrorLevel:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a console logger for the given options. The returned close
// function flushes and releases the log file, if any.
func New(opts Options) (*Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	if opts.Discard {
		return Nop(), func() error { return nil }, nil
	}

	var (
		ws      zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
		closeFn                     = func() error { return nil }
	)
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		ws = zapcore.Lock(f)
		closeFn = f.Close
	}

	log := &Logger{SugaredLogger: zap.New(newConsoleCore(ws, level)).Sugar()}
	return log, func() error {
		_ = log.Sync()
		return closeFn()
	}, nil
}

// NewWriter builds a logger writing to w. Used by tests to capture output.
func NewWriter(w io.Writer, level zapcore.Level) *Logger {
	return &Logger{SugaredLogger: zap.New(newConsoleCore(zapcore.AddSync(w), level)).Sugar()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(kv...)}
}

// Named returns a child logger with a component name
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}

// newConsoleCore builds a zapcore.Core with a console encoder
func newConsoleCore(ws zapcore.WriteSyncer, level zapcore.Level) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	return zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level))
}
