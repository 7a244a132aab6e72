package threatlens

import (
	"strings"
	"time"

	"github.com/oarkflow/log"
)

// logger is the package-wide structured logger. Handlers and the
// detection pipeline log through this instance so output stays
// consistent across the process.
var logger = log.Logger{
	Level:      log.InfoLevel,
	TimeField:  "ts",
	TimeFormat: time.RFC3339,
	Writer:     &log.ConsoleWriter{ColorOutput: true},
}

// SetLogLevel adjusts package log verbosity. Unknown values keep the
// current level.
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logger.Level = log.DebugLevel
	case "info":
		logger.Level = log.InfoLevel
	case "warn":
		logger.Level = log.WarnLevel
	case "error":
		logger.Level = log.ErrorLevel
	}
}
