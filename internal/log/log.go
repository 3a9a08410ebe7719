// Package log provides structured logging shared across the runtime.
package log

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	correlationIDKey ctxKey = "correlation_id"
	actorIDKey       ctxKey = "actor_id"
)

// Logger wraps logrus.Logger with runtime-specific conventions.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a logger for the named component ("catalog", "eventbus", "actor:auth", ...).
func New(component, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewDefault returns an info-level, text-formatted logger for the named component.
func NewDefault(component string) *Logger {
	return New(component, "info", "text")
}

// WithContext pulls correlation/actor ids out of ctx into log fields.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{"component": l.component}
	if cid := CorrelationID(ctx); cid != "" {
		fields["correlation_id"] = cid
	}
	if aid := ActorID(ctx); aid != "" {
		fields["actor_id"] = aid
	}
	return l.Logger.WithFields(fields)
}

// WithCorrelationID attaches a correlation id to a new context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID reads the correlation id from ctx, if any.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithActorID attaches an actor id to a new context.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey, id)
}

// ActorID reads the actor id from ctx, if any.
func ActorID(ctx context.Context) string {
	if v, ok := ctx.Value(actorIDKey).(string); ok {
		return v
	}
	return ""
}
