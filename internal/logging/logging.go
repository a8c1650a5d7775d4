// Package logging configures the go-ethereum root logger for the commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Formats accepted by Setup.
const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
)

// ParseLevel maps a level name to its slog level. The empty string is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// NewHandler builds a handler writing to w in the given format.
func NewHandler(w io.Writer, level, format string) (slog.Handler, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", FormatTerminal:
		useColor := false
		if f, ok := w.(*os.File); ok {
			useColor = (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) && os.Getenv("TERM") != "dumb"
			if useColor {
				w = colorable.NewColorable(f)
			}
		}
		return log.NewTerminalHandlerWithLevel(w, lvl, useColor), nil
	case FormatJSON:
		return log.JSONHandlerWithLevel(w, lvl), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Rotation limits of the log file.
const (
	maxFileSizeMB = 100
	maxBackups    = 3
	maxAgeDays    = 30
)

// Setup installs the root logger. Records go to stderr, or to a rotated file
// when file is set.
func Setup(level, format, file string) error {
	var w io.Writer = os.Stderr
	if file != "" {
		w = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxFileSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
	}
	h, err := NewHandler(w, level, format)
	if err != nil {
		return err
	}
	log.SetDefault(log.NewLogger(h))
	return nil
}
