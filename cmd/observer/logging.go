package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/davidahmann/observer/core/config"
)

func newLogger(settings config.LogConfig, writer io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.Level)); err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(settings.Format, "json") {
		return slog.New(slog.NewJSONHandler(writer, options))
	}
	return slog.New(slog.NewTextHandler(writer, options))
}
