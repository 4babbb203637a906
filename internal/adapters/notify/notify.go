// Package notify delivers session outcome notifications downstream.
package notify

import (
	"context"
	"errors"

	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/pkg/logger"
	"github.com/okian/clutch/pkg/metrics"
)

// Notifier sends one notification.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Named is implemented by notifiers that label their metrics.
type Named interface {
	Name() string
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n model.Notification) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, n model.Notification) error { return f(ctx, n) } //nolint:gocritic // hugeParam

// Log writes notifications to a logger.
type Log struct {
	log logger.Logger
}

// NewLog returns a Log notifier. A nil logger discards.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Nop()
	}
	return &Log{log: l}
}

// Name implements Named.
func (*Log) Name() string { return "log" }

// Notify implements Notifier.
func (l *Log) Notify(ctx context.Context, n model.Notification) error { //nolint:gocritic // hugeParam
	fields := []logger.Field{
		logger.String("type", n.Type),
		logger.String("session_id", n.SessionID),
		logger.String("subject_id", n.SubjectID),
		logger.String("status", string(n.Status)),
	}
	if n.Type == model.NotificationReportReady {
		fields = append(fields,
			logger.Float64("championship_readiness", n.ChampionshipReadiness),
			logger.String("level", n.Level),
		)
	} else {
		fields = append(fields,
			logger.String("failed_stream", string(n.FailedStream)),
			logger.String("error", n.Error),
		)
	}
	l.log.Info(ctx, "session notification", fields...)
	return nil
}

// Multi fans a notification out to every sink and records per-sink results.
// A failing sink does not stop the others.
type Multi struct {
	sinks []Notifier
}

// NewMulti returns a Multi over the non-nil sinks.
func NewMulti(sinks ...Notifier) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Notify implements Notifier. The returned error joins every sink failure.
func (m *Multi) Notify(ctx context.Context, n model.Notification) error { //nolint:gocritic // hugeParam
	var errs []error
	for _, s := range m.sinks {
		name := "custom"
		if named, ok := s.(Named); ok {
			name = named.Name()
		}
		if err := s.Notify(ctx, n); err != nil {
			metrics.RecordNotification(name, "failed")
			errs = append(errs, err)
			continue
		}
		metrics.RecordNotification(name, "sent")
	}
	return errors.Join(errs...)
}
