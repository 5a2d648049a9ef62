// Package logging sets up the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/photonicat/pcat2_slot_display/internal/config"
)

// Init writes to a console writer on stderr and, when cfg.File is set, to
// a rotating log file. Extra writers are added as they are.
func Init(cfg config.Log, writers ...io.Writer) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	logWriters := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return err
		}
		logWriters = append(logWriters, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	logWriters = append(logWriters, writers...)

	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(io.MultiWriter(logWriters...)).
		With().Timestamp().Logger()
	return nil
}
