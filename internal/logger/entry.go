package logger

import (
	"context"
	"time"
)

// Entry carries per-event fields and logs through the logger found in the context it is given.
//
//	logger.With(logger.Fields{logger.FieldCount: n}).Since(start).Info(ctx, "Indexed %s", id)
type Entry struct {
	fields Fields
}

// With starts an Entry with the given fields.
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// With returns a copy of the Entry with more fields.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithFrame tags the entry with a frame index.
func (e *Entry) WithFrame(index int64) *Entry {
	return e.With(Fields{FieldFrame: index})
}

// WithBackend tags the entry with a text detection backend.
func (e *Entry) WithBackend(name string) *Entry {
	return e.With(Fields{FieldBackend: name})
}

// Since records the milliseconds elapsed from start.
func (e *Entry) Since(start time.Time) *Entry {
	return e.With(Fields{FieldDurationMs: time.Since(start).Milliseconds()})
}

func (e *Entry) log(ctx context.Context) *Logger {
	return FromContext(ctx).WithFields(e.fields)
}

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx).Debugf(format, args...)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx).Infof(format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx).Warnf(format, args...)
}
