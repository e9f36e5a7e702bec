// SPDX-License-Identifier: EPL-2.0

// Package logging sets up the process-wide slog logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var ErrUnknownLevel = errors.New("unexpected log level")

// ParseLevel maps "error", "warn", "info" and "debug" to a slog level.
// "none" reports ok == false.
func ParseLevel(level string) (lvl slog.Level, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "none":
		return 0, false, nil
	case "error":
		return slog.LevelError, true, nil
	case "warn":
		return slog.LevelWarn, true, nil
	case "info", "":
		return slog.LevelInfo, true, nil
	case "debug":
		return slog.LevelDebug, true, nil
	}
	return 0, false, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
}

// NewHandler builds the handler ConfigureDefaultLogger installs: text on w
// when file is empty, JSON on a truncated file otherwise. The returned file
// is nil when nothing was opened.
func NewHandler(level, file string, w io.Writer, opts slog.HandlerOptions) (slog.Handler, *os.File, error) {
	lvl, ok, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return slog.DiscardHandler, nil, nil
	}
	opts.Level = lvl

	if file == "" {
		return slog.NewTextHandler(w, &opts), nil, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.NewJSONHandler(f, &opts), f, nil
}

// ConfigureDefaultLogger installs the default slog logger.
//
// Valid levels are "none", "error", "warn", "info" and "debug". With an empty
// logFile the logger writes text to stdout; otherwise it writes JSON to
// logFile. The caller closes the returned file, which is nil for stdout.
func ConfigureDefaultLogger(logLevel, logFile string, opts slog.HandlerOptions) (*os.File, error) {
	h, f, err := NewHandler(logLevel, logFile, os.Stdout, opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(h))
	return f, nil
}
