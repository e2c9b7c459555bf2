package pkg

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// LogLevel is the verbosity of diagnostic output
type LogLevel int

const (
	// LogLevelError only reports failures
	LogLevelError LogLevel = iota
	// LogLevelWarn also reports skipped devices and degraded discovery
	LogLevelWarn
	// LogLevelInfo also reports progress
	LogLevelInfo
	// LogLevelDebug reports every discovery step
	LogLevelDebug
)

// Logger wraps a logrus.Logger. Diagnostics always go to stderr so stdout
// carries nothing but the report.
type Logger struct {
	logger *log.Logger
}

var defaultLogger *Logger

func init() {
	defaultLogger = NewLogger(LogLevelWarn)
}

// NewLogger creates a logger writing to stderr at the given level
func NewLogger(level LogLevel) *Logger {
	logger := log.New()
	logger.SetLevel(logrusLevelFromLogLevel(level))

	l := &Logger{logger: logger}
	l.configureOutput(os.Stderr)
	return l
}

// configureOutput picks a human friendly formatter for terminals and JSON otherwise
func (l *Logger) configureOutput(w io.Writer) {
	l.logger.SetOutput(w)
	if isTerminal(w) {
		l.logger.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		return
	}
	l.logger.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// logrusLevelFromLogLevel converts our LogLevel to logrus.Level
func logrusLevelFromLogLevel(level LogLevel) log.Level {
	switch level {
	case LogLevelDebug:
		return log.DebugLevel
	case LogLevelInfo:
		return log.InfoLevel
	case LogLevelWarn:
		return log.WarnLevel
	case LogLevelError:
		return log.ErrorLevel
	default:
		return log.WarnLevel
	}
}

// ParseLogLevel parses debug, info, warn or error
func ParseLogLevel(levelStr string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelWarn, fmt.Errorf("invalid log level: %s", levelStr)
	}
}

// SetLogLevel sets the log level for the default logger
func SetLogLevel(level LogLevel) {
	defaultLogger.logger.SetLevel(logrusLevelFromLogLevel(level))
}

// SetLogLevelFromString sets the log level from a string
func SetLogLevelFromString(levelStr string) error {
	level, err := ParseLogLevel(levelStr)
	if err != nil {
		return err
	}
	SetLogLevel(level)
	return nil
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	defaultLogger.logger.Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	defaultLogger.logger.Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	defaultLogger.logger.Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	defaultLogger.logger.Errorf(format, args...)
}

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	return defaultLogger
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return defaultLogger.logger.GetLevel() >= log.DebugLevel
}

// SetOutput redirects the default logger and reselects its formatter
func SetOutput(output io.Writer) {
	defaultLogger.configureOutput(output)
}

// SetFormatter overrides the formatter chosen by SetOutput
func SetFormatter(formatter log.Formatter) {
	defaultLogger.logger.SetFormatter(formatter)
}

// WithField adds a field to the logger
func WithField(key string, value interface{}) *log.Entry {
	return defaultLogger.logger.WithField(key, value)
}

// WithFields adds multiple fields to the logger
func WithFields(fields log.Fields) *log.Entry {
	return defaultLogger.logger.WithFields(fields)
}

// WithError adds an error field to the logger
func WithError(err error) *log.Entry {
	return defaultLogger.logger.WithError(err)
}
