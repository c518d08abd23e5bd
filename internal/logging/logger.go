package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is the process logger. It writes to stderr until Init is called.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.RFC3339,
	Level:           log.InfoLevel,
})

// Init points the logger at w with the given level name (debug, info, warn, error)
func Init(level string, w io.Writer) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}

	Logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
	})

	if err != nil {
		Logger.Warn("Unknown log level, using info", "level", level)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}
