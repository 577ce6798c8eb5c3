package dnp3

import (
	"avaneesh/dnp3-outstation/pkg/internal/logger"
)

// Logger is the printf-style logger the protocol packages accept
type Logger = logger.Logger

// LogLevel represents logging level
type LogLevel = logger.Level

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug = logger.LevelDebug
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo = logger.LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn = logger.LevelWarn
	// LevelError shows only error messages
	LevelError = logger.LevelError
)

// NewLogger returns a klog backed logger filtered at level. Debug output
// additionally needs --v=4 and info output --v=2.
func NewLogger(level LogLevel) Logger {
	l := logger.NewKlogLogger()
	l.SetLevel(level)
	return l
}

// ParseLogLevel resolves "debug", "info", "warn" or "error"
func ParseLogLevel(s string) (LogLevel, error) {
	return logger.ParseLevel(s)
}
