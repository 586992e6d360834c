package logx

import (
	"context"
	"fmt"
)

// Entry accumulates fields for one line. Each With* call returns a new Entry,
// so a shared base entry can be extended concurrently.
type Entry struct {
	logger *Logger
	fields Fields
	err    error
}

func (e *Entry) clone(extra int) *Entry {
	fields := make(Fields, len(e.fields)+extra)
	for k, v := range e.fields {
		fields[k] = v
	}
	return &Entry{logger: e.logger, fields: fields, err: e.err}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	n := e.clone(1)
	n.fields[key] = value
	return n
}

func (e *Entry) WithFields(fields Fields) *Entry {
	n := e.clone(len(fields))
	for k, v := range fields {
		n.fields[k] = v
	}
	return n
}

func (e *Entry) WithError(err error) *Entry {
	n := e.clone(0)
	n.err = err
	return n
}

// WithContext copies the request ID stored by ContextWithRequestID.
func (e *Entry) WithContext(ctx context.Context) *Entry {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return e
	}
	return e.WithField("request_id", id)
}

func (e *Entry) log(level Level, msg string) {
	e.logger.write(level, msg, e.fields, e.err)
}

func (e *Entry) Debug(msg string) { e.log(LevelDebug, msg) }
func (e *Entry) Info(msg string)  { e.log(LevelInfo, msg) }
func (e *Entry) Warn(msg string)  { e.log(LevelWarn, msg) }
func (e *Entry) Error(msg string) { e.log(LevelError, msg) }

func (e *Entry) Fatal(msg string) {
	e.log(LevelFatal, msg)
	e.logger.exitFn(1)
}

func (e *Entry) Debugf(format string, args ...interface{}) {
	e.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (e *Entry) Infof(format string, args ...interface{}) {
	e.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	e.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.log(LevelError, fmt.Sprintf(format, args...))
}
