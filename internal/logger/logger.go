package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation parameters for the daemon's own log file.
const (
	daemonLogMaxSizeMB  = 10
	daemonLogMaxBackups = 3
	daemonLogMaxAgeDays = 7
)

// Config controls where the daemon writes its own log output.
// FilePath is optional; when set, output goes to both stderr and a
// size-rotated file.
type Config struct {
	Level    string `mapstructure:"level"`
	FilePath string `mapstructure:"file"`
}

// Setup installs the default slog logger. It returns a closer for the
// file writer when one was configured.
func Setup(cfg Config) io.Closer {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var closer io.Closer
	w := io.Writer(os.Stderr)
	if cfg.FilePath != "" {
		fw := &lj.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    daemonLogMaxSizeMB,
			MaxBackups: daemonLogMaxBackups,
			MaxAge:     daemonLogMaxAgeDays,
		}
		closer = fw
		w = io.MultiWriter(os.Stderr, fw)
	}

	slog.SetDefault(slog.New(NewColorTextHandler(w, opts)))
	return closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
