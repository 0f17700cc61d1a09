package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls how the command-line tools log.
type Config struct {
	// Log at debug level with timestamps and fields instead of bare messages.
	Verbose bool
	// If set, everything is also written to this file, rotated by size.
	LogFile string
	// Rotation options for LogFile.
	MaxSizeMb  int
	MaxBackups int
}

// ConfigureCommandLineLogging sets up the standard logger for interactive use: bare messages on stdout at info level.
func ConfigureCommandLineLogging() {
	log.SetFormatter(new(CommandLineFormatter))
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// Configure applies config on top of ConfigureCommandLineLogging.
func Configure(config Config) error {
	ConfigureCommandLineLogging()
	if config.Verbose {
		log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
		log.SetLevel(log.DebugLevel)
	}
	if config.LogFile == "" {
		return nil
	}
	if config.MaxSizeMb < 0 || config.MaxBackups < 0 {
		return errors.Errorf("invalid log rotation: maxSizeMb=%d maxBackups=%d", config.MaxSizeMb, config.MaxBackups)
	}
	fileLogger := &lumberjack.Logger{
		Filename:   config.LogFile,
		MaxSize:    config.MaxSizeMb,
		MaxBackups: config.MaxBackups,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
	return nil
}
