package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	case LevelOff:
		return "OFF"
	}
	return "UNKNOWN"
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	case "OFF":
		return LevelOff
	}
	return LevelInfo
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Format     string // "console" or "json"
	TimeFormat string
	Output     io.Writer
}

// DefaultConfig returns the console configuration used in development.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	}
}

// LoadFromEnv builds a Config from LOG_LEVEL and LOG_FORMAT.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = ParseLevel(v)
	}
	if v := strings.ToLower(os.Getenv("LOG_FORMAT")); v == "json" {
		cfg.Format = "json"
	}
	return cfg
}

// Logger writes leveled, structured log lines.
type Logger struct {
	mu        sync.Mutex
	config    *Config
	formatter formatter
	writer    io.Writer
	exitFunc  func(int)
}

// NewLogger creates a logger with the given config.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	var f formatter
	if config.Format == "json" {
		f = &jsonFormatter{timeFormat: config.TimeFormat}
	} else {
		f = &consoleFormatter{timeFormat: config.TimeFormat}
	}
	w := config.Output
	if w == nil {
		w = os.Stdout
	}
	return &Logger{config: config, formatter: f, writer: w, exitFunc: os.Exit}
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetOutput changes the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// WithFields starts a structured entry.
func (l *Logger) WithFields(fields Fields) *Entry {
	e := newEntry(l)
	return e.WithFields(fields)
}

// WithField starts an entry with a single field.
func (l *Logger) WithField(key string, value any) *Entry {
	return newEntry(l).WithField(key, value)
}

// WithError starts an entry carrying an error field.
func (l *Logger) WithError(err error) *Entry {
	return newEntry(l).WithError(err)
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.config.Level {
		return
	}
	line := l.formatter.format(level, time.Now(), msg, fields)
	fmt.Fprintln(l.writer, line)
}

func (l *Logger) exit(code int) { l.exitFunc(code) }

// ----------------------------------------------------------------------------
// Package-level default logger
// ----------------------------------------------------------------------------

var defaultLogger = NewLogger(LoadFromEnv())

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(l *Logger) { defaultLogger = l }

// SetLevel sets the level of the default logger.
func SetLevel(level Level) { defaultLogger.SetLevel(level) }

func Debug(msg string) { defaultLogger.log(LevelDebug, msg, nil) }
func Info(msg string)  { defaultLogger.log(LevelInfo, msg, nil) }
func Warn(msg string)  { defaultLogger.log(LevelWarn, msg, nil) }
func Error(msg string) { defaultLogger.log(LevelError, msg, nil) }
func Fatal(msg string) {
	defaultLogger.log(LevelFatal, msg, nil)
	defaultLogger.exit(1)
}

func Debugf(format string, args ...any) {
	defaultLogger.log(LevelDebug, fmt.Sprintf(format, args...), nil)
}
func Infof(format string, args ...any) {
	defaultLogger.log(LevelInfo, fmt.Sprintf(format, args...), nil)
}
func Warnf(format string, args ...any) {
	defaultLogger.log(LevelWarn, fmt.Sprintf(format, args...), nil)
}
func Errorf(format string, args ...any) {
	defaultLogger.log(LevelError, fmt.Sprintf(format, args...), nil)
}
func Fatalf(format string, args ...any) {
	defaultLogger.log(LevelFatal, fmt.Sprintf(format, args...), nil)
	defaultLogger.exit(1)
}

// WithFields starts a structured entry on the default logger.
func WithFields(fields Fields) *Entry { return defaultLogger.WithFields(fields) }

// WithField starts an entry with a single field on the default logger.
func WithField(key string, value any) *Entry { return defaultLogger.WithField(key, value) }

// WithError starts an entry carrying an error on the default logger.
func WithError(err error) *Entry { return defaultLogger.WithError(err) }
