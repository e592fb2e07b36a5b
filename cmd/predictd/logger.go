package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds the process logger from --log-level and --log-format.
func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	var lvl zerolog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "off", "disabled":
		lvl = zerolog.Disabled
	case "":
		lvl = zerolog.InfoLevel
	default:
		l, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level: %w", err)
		}
		lvl = l
	}
	switch strings.ToLower(format) {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "predictd").Logger(), nil
}
