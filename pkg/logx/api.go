package logx

import (
	"fmt"
	"io"
)

var defaultLogger = NewLogger(LoadFromEnv())

// SetDefaultLogger replaces the package-level logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// SetLevel sets the level of the package-level logger
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput redirects the package-level logger
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

func Debug(msg string) { defaultLogger.log(LevelDebug, msg, nil, nil) }
func Info(msg string)  { defaultLogger.log(LevelInfo, msg, nil, nil) }
func Warn(msg string)  { defaultLogger.log(LevelWarn, msg, nil, nil) }
func Error(msg string) { defaultLogger.log(LevelError, msg, nil, nil) }

// Fatal logs and exits with status 1
func Fatal(msg string) {
	defaultLogger.log(LevelFatal, msg, nil, nil)
	defaultLogger.exitFunc(1)
}

func Debugf(format string, args ...any) {
	defaultLogger.log(LevelDebug, fmt.Sprintf(format, args...), nil, nil)
}
func Infof(format string, args ...any) {
	defaultLogger.log(LevelInfo, fmt.Sprintf(format, args...), nil, nil)
}
func Warnf(format string, args ...any) {
	defaultLogger.log(LevelWarn, fmt.Sprintf(format, args...), nil, nil)
}
func Errorf(format string, args ...any) {
	defaultLogger.log(LevelError, fmt.Sprintf(format, args...), nil, nil)
}

// Fatalf logs a formatted message and exits with status 1
func Fatalf(format string, args ...any) {
	defaultLogger.log(LevelFatal, fmt.Sprintf(format, args...), nil, nil)
	defaultLogger.exitFunc(1)
}

// WithField starts an entry on the package-level logger
func WithField(key string, value any) *Entry {
	return defaultLogger.WithField(key, value)
}

// WithFields starts an entry on the package-level logger
func WithFields(fields Fields) *Entry {
	return defaultLogger.WithFields(fields)
}

// WithError starts an entry on the package-level logger
func WithError(err error) *Entry {
	return defaultLogger.WithError(err)
}
