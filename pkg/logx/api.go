package logx

import (
	"context"
	"fmt"
	"io"
)

var std = New(ConfigFromEnv())

// SetDefault replaces the process logger. Call it before starting goroutines.
func SetDefault(l *Logger) { std = l }

func SetLevel(level Level) { std.SetLevel(level) }

func SetOutput(w io.Writer) { std.SetOutput(w) }

func Debug(msg string) { std.entry().log(LevelDebug, msg) }
func Info(msg string)  { std.entry().log(LevelInfo, msg) }
func Warn(msg string)  { std.entry().log(LevelWarn, msg) }
func Error(msg string) { std.entry().log(LevelError, msg) }

func Debugf(format string, args ...interface{}) {
	std.entry().log(LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	std.entry().log(LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	std.entry().log(LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	std.entry().log(LevelError, fmt.Sprintf(format, args...))
}

// Fatalf logs and exits the process with status 1.
func Fatalf(format string, args ...interface{}) {
	std.entry().log(LevelFatal, fmt.Sprintf(format, args...))
	std.exitFn(1)
}

func WithField(key string, value interface{}) *Entry { return std.WithField(key, value) }

func WithFields(fields Fields) *Entry { return std.WithFields(fields) }

func WithError(err error) *Entry { return std.WithError(err) }

func WithContext(ctx context.Context) *Entry { return std.entry().WithContext(ctx) }
