package config

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging configures the global logger. The returned func closes the
// rotating log file, if one is configured.
func SetupLogging(sys SystemConfig) func() error {
	writers := []io.Writer{os.Stderr}
	closeFn := func() error { return nil }

	if sys.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   sys.LogFile,
			MaxSize:    sys.LogMaxSizeMB,
			MaxBackups: sys.LogMaxBackups,
			MaxAge:     sys.LogMaxAgeDays,
		}
		writers = append(writers, file)
		closeFn = file.Close
	}

	// Set log level based on config
	logrus.SetLevel(sys.GetLogLevel())

	logrus.SetOutput(io.MultiWriter(writers...))

	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	return closeFn
}
