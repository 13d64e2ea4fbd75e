// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pricematch/pricematch/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Init configures the standard logrus logger used across the packages.
func Init(cfg config.LogConfig) error {
	return Configure(logrus.StandardLogger(), cfg)
}

// Configure applies level, format and output settings to l. When a file is
// configured, entries go to both stderr and the rotated file.
func Configure(l *logrus.Logger, cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		l.Warnf("Invalid log level '%s', using 'info'", cfg.Level)
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	if cfg.File == "" {
		l.SetOutput(os.Stderr)
		return nil
	}

	w, err := NewFileWriter(cfg)
	if err != nil {
		return err
	}
	l.SetOutput(io.MultiWriter(os.Stderr, w))
	return nil
}

// NewFileWriter returns a size-rotated writer for cfg.File.
func NewFileWriter(cfg config.LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}
