package logger

import (
	"context"
	"sync"
)

type contextKey struct{}

var (
	defaultLogger   = New(nil)
	defaultLoggerMu sync.RWMutex
)

// GetDefault returns the process-wide logger used when a context carries none.
func GetDefault() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger. nil is ignored.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultLoggerMu.Lock()
	defaultLogger = l
	defaultLoggerMu.Unlock()
}

// WithContext stores the logger in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// WithFields returns ctx with its logger enriched by fields.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// Detach returns a background context that keeps ctx's logger but none of its deadline or
// cancellation. Workers outliving a request start from it.
func Detach(ctx context.Context) context.Context {
	return FromContext(ctx).WithContext(context.Background())
}

func SetRequestID(ctx context.Context, id string) context.Context {
	return WithFields(ctx, Fields{FieldRequestID: id})
}

func SetJobID(ctx context.Context, id string) context.Context {
	return WithFields(ctx, Fields{FieldJobID: id})
}

func SetSourceID(ctx context.Context, sourceID string) context.Context {
	return WithFields(ctx, Fields{FieldSourceID: sourceID})
}

func SetSearchID(ctx context.Context, id string) context.Context {
	return WithFields(ctx, Fields{FieldSearchID: id})
}

func SetComponent(ctx context.Context, name string) context.Context {
	return WithFields(ctx, Fields{FieldComponent: name})
}
