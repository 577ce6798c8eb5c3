package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"
)

// Level represents logging level
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel resolves a level name such as "debug" or "WARN"
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is the interface for logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level Level)
}

// KlogLogger routes printf-style protocol logs into klog.
// Debug maps to V(4) and Info to V(2), so --v controls them; SetLevel
// filters further on top of that.
type KlogLogger struct {
	level atomic.Int32
	depth int
}

// NewKlogLogger creates a logger that passes everything klog lets through
func NewKlogLogger() *KlogLogger {
	l := &KlogLogger{depth: 1}
	l.level.Store(int32(LevelDebug))
	return l
}

func (l *KlogLogger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

func (l *KlogLogger) Debug(format string, args ...interface{}) {
	if l.enabled(LevelDebug) && klog.V(4).Enabled() {
		klog.InfoDepth(l.depth, fmt.Sprintf(format, args...))
	}
}

func (l *KlogLogger) Info(format string, args ...interface{}) {
	if l.enabled(LevelInfo) && klog.V(2).Enabled() {
		klog.InfoDepth(l.depth, fmt.Sprintf(format, args...))
	}
}

func (l *KlogLogger) Warn(format string, args ...interface{}) {
	if l.enabled(LevelWarn) {
		klog.WarningDepth(l.depth, fmt.Sprintf(format, args...))
	}
}

func (l *KlogLogger) Error(format string, args ...interface{}) {
	if l.enabled(LevelError) {
		klog.ErrorDepth(l.depth, fmt.Sprintf(format, args...))
	}
}

// SetLevel drops messages below level
func (l *KlogLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// NoOpLogger discards everything
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (*NoOpLogger) Debug(string, ...interface{}) {}
func (*NoOpLogger) Info(string, ...interface{})  {}
func (*NoOpLogger) Warn(string, ...interface{})  {}
func (*NoOpLogger) Error(string, ...interface{}) {}
func (*NoOpLogger) SetLevel(Level)               {}

// Recorder keeps formatted messages in memory, for tests
type Recorder struct {
	NoOpLogger
	mu      sync.Mutex
	entries []string
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level Level, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, level.String()+" "+fmt.Sprintf(format, args...))
}

// Debug records a debug message
func (r *Recorder) Debug(format string, args ...interface{}) { r.add(LevelDebug, format, args...) }

// Info records an info message
func (r *Recorder) Info(format string, args ...interface{}) { r.add(LevelInfo, format, args...) }

// Warn records a warning
func (r *Recorder) Warn(format string, args ...interface{}) { r.add(LevelWarn, format, args...) }

// Error records an error
func (r *Recorder) Error(format string, args ...interface{}) { r.add(LevelError, format, args...) }

// Entries returns a copy of everything recorded so far
func (r *Recorder) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}
