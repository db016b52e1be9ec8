/*
NAME
  vlog.go

DESCRIPTION
  vlog re-exports the ausocean/utils/logging.Logger contract (the exact
  method set exercised by revid/config's dumbLogger test double in the
  teacher) so that every driver in this module depends on an interface
  rather than a concrete logging package, and wires up the file-rotation
  construction idiom cmd/rv/main.go uses: a lumberjack.Logger as the
  rotated-file half of an io.MultiWriter passed to logging.New.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package vlog provides the leveled logging interface consumed by every
// FileVault driver, and a constructor that wires it to stderr plus an
// optional rotated log file.
package vlog

import (
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the leveled, structured logging interface every driver in
// this module accepts. It is satisfied by *logging.Logger from
// github.com/ausocean/utils/logging.
type Logger interface {
	SetLevel(int8)
	Log(level int8, message string, params ...interface{})
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warning(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Re-exported severity levels, matching ausocean/utils/logging's scale.
const (
	Debug   = logging.Debug
	Info    = logging.Info
	Warning = logging.Warning
	Error   = logging.Error
	Fatal   = logging.Fatal
)

// Rotation defaults for the optional log file, matching the scale
// cmd/rv/main.go uses for its own lumberjack.Logger.
const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

// New returns a Logger at the given verbosity that writes to stderr and,
// if logPath is non-empty, to a lumberjack-rotated file at logPath.
func New(level int8, logPath string) Logger {
	var w io.Writer = os.Stderr
	if logPath != "" {
		fileLog := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    defaultMaxSizeMB,
			MaxBackups: defaultMaxBackups,
			MaxAge:     defaultMaxAgeDays,
		}
		w = io.MultiWriter(os.Stderr, fileLog)
	}
	return logging.New(level, w, true)
}

// Discard is a Logger that drops everything; useful in tests that need
// to satisfy the Logger contract without asserting on log output.
var Discard Logger = discard{}

type discard struct{}

func (discard) SetLevel(int8)                    {}
func (discard) Log(int8, string, ...interface{}) {}
func (discard) Debug(string, ...interface{})     {}
func (discard) Info(string, ...interface{})      {}
func (discard) Warning(string, ...interface{})   {}
func (discard) Error(string, ...interface{})     {}
func (discard) Fatal(string, ...interface{})     {}
