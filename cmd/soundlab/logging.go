package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/natefinch/lumberjack"
	slogmulti "github.com/samber/slog-multi"
)

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// newLogger returns a console logger on stderr, teed into a rotating JSON
// file when file is set. The returned func closes the file.
func newLogger(levelName, format, file string) (*slog.Logger, func() error, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	console, err := consoleHandler(os.Stderr, format, level)
	if err != nil {
		return nil, nil, err
	}

	if file == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	lj := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	fileHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(console, fileHandler)), lj.Close, nil
}

func consoleHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch format {
	case "text":
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}
