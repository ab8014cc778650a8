// SPDX-License-Identifier: Apache-2.0
//
// Copyright 2025 Jeremy Hahn
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging defines the printf-style Logger used throughout the
// device and its transports, with stdout and zerolog implementations.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the logging interface accepted by every component.
type Logger interface {
	// Info logs informational messages.
	Info(format string, args ...interface{})
	// Debug logs debug messages (verbose output).
	Debug(format string, args ...interface{})
	// Error logs error messages.
	Error(format string, args ...interface{})
}

// FieldLogger is implemented by loggers that can attach a key/value pair
// to every subsequent line.
type FieldLogger interface {
	Logger
	With(key, value string) Logger
}

// With returns l with key=value attached. Loggers without structured
// fields get the pair as a message prefix.
func With(l Logger, key, value string) Logger {
	if l == nil {
		return NopLogger{}
	}
	if fl, ok := l.(FieldLogger); ok {
		return fl.With(key, value)
	}
	return &prefixLogger{next: l, prefix: key + "=" + value + " "}
}

// NopLogger is a no-op logger that discards all log messages.
type NopLogger struct{}

func (NopLogger) Info(format string, args ...interface{})  {}
func (NopLogger) Debug(format string, args ...interface{}) {}
func (NopLogger) Error(format string, args ...interface{}) {}

// StdoutLogger logs to stdout with a prefix.
type StdoutLogger struct {
	Prefix  string
	Verbose bool
}

func (l *StdoutLogger) Info(format string, args ...interface{}) {
	fmt.Printf("[%s] %s\n", l.Prefix, fmt.Sprintf(format, args...))
}

func (l *StdoutLogger) Debug(format string, args ...interface{}) {
	if l.Verbose {
		fmt.Printf("[%s] DEBUG: %s\n", l.Prefix, fmt.Sprintf(format, args...))
	}
}

func (l *StdoutLogger) Error(format string, args ...interface{}) {
	fmt.Printf("[%s] ERROR: %s\n", l.Prefix, fmt.Sprintf(format, args...))
}

// prefixLogger passes its prefix as an argument so a value holding a
// verb is printed as written.
type prefixLogger struct {
	next   Logger
	prefix string
}

func (l *prefixLogger) args(args []interface{}) []interface{} {
	return append([]interface{}{l.prefix}, args...)
}

func (l *prefixLogger) Info(format string, args ...interface{}) {
	l.next.Info("%s"+format, l.args(args)...)
}

func (l *prefixLogger) Debug(format string, args ...interface{}) {
	l.next.Debug("%s"+format, l.args(args)...)
}

func (l *prefixLogger) Error(format string, args ...interface{}) {
	l.next.Error("%s"+format, l.args(args)...)
}

// ZerologLogger adapts a zerolog.Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: l}
}

// New builds a zerolog-backed Logger writing to w. format is "json" or
// "console"; level is any zerolog level name.
func New(w io.Writer, level, format string) (*ZerologLogger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("logging: invalid level %q: %w", level, err)
		}
		lvl = parsed
	}

	switch strings.ToLower(format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	case "json":
	default:
		return nil, fmt.Errorf("logging: invalid format %q", format)
	}
	return &ZerologLogger{log: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
}

func (l *ZerologLogger) Info(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Debug(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Error(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

// With returns a child logger carrying key=value.
func (l *ZerologLogger) With(key, value string) Logger {
	return &ZerologLogger{log: l.log.With().Str(key, value).Logger()}
}

// Zerolog exposes the underlying logger.
func (l *ZerologLogger) Zerolog() zerolog.Logger { return l.log }
