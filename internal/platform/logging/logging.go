// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger output. Zero values log text at info level to stderr.
type Config struct {
	Level      string `env:"TIMELINER_LOG_LEVEL" envDefault:"info"`
	Format     string `env:"TIMELINER_LOG_FORMAT" envDefault:"text"`
	File       string `env:"TIMELINER_LOG_FILE"`
	MaxSizeMB  int    `env:"TIMELINER_LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"TIMELINER_LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"TIMELINER_LOG_MAX_AGE_DAYS" envDefault:"28"`
}

// New builds a logger from cfg. When cfg.File is set, output goes to both
// stderr and a size-rotated file.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	var out io.Writer = os.Stderr
	if path := strings.TrimSpace(cfg.File); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	logger.SetOutput(out)
	return logger, nil
}

// Discard returns a logger that drops everything. Tests use it to keep
// output quiet.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Component returns an entry tagged with the component name.
func Component(logger logrus.FieldLogger, name string) logrus.FieldLogger {
	if logger == nil {
		logger = Discard()
	}
	return logger.WithField("component", name)
}
