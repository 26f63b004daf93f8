package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/Wyydra/callbridge/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Bootstrap is the console logger used until the configuration is loaded.
func Bootstrap(w io.Writer) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: w})
}

// Setup configures the global zerolog logger. The returned closer flushes
// the rotating log file when one is configured.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL value %q: %w", cfg.Level, err)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = os.Stdout
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	out := console
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.FileMaxMB, // megabytes
			MaxBackups: 3,
		}
		out = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	log.Logger = newLogger(out)
	return closer, nil
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
