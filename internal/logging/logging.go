// Package logging builds the process logger from config.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/drewfead/lovemovie/internal/config"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// New returns a text logger at the configured level. With a log file set, output goes to a
// size-rotated file instead of fallback. Close the returned closer on exit.
func New(cfg config.Log, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var out io.WriteCloser = nopCloser{fallback}
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), out, nil
}
