package config

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseLogLevel accepts slog level names, "warning" and numeric levels. An
// empty value means info.
func ParseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, errors.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// NewLogger returns a JSON logger writing to w
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
