// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/phsym/console-slog"
)

// ParseLevel maps debug, info, warn and error to a slog level. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the handler for cfg writing to w.
func NewHandler(cfg config.LogConfig, w io.Writer) slog.Handler {
	level := ParseLevel(cfg.Level)

	switch cfg.Format {
	case "console":
		return console.NewHandler(w, &console.HandlerOptions{
			AddSource: level == slog.LevelDebug,
			Level:     level,
		})
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					a.Key = "ts"
				}
				return a
			},
		})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
}

// Setup installs the default logger. The returned closer releases the log
// file, if any.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f
	}

	slog.SetDefault(slog.New(NewHandler(cfg, w)))
	return closer, nil
}
