package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Notification delivery outcomes
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultDropped   = "dropped"
)

// ChatMetrics holds the chat relay counters. A nil *ChatMetrics records nothing.
type ChatMetrics struct {
	sessionsStarted metric.Int64Counter
	messages        metric.Int64Counter
	notifications   metric.Int64Counter
	reaped          metric.Int64Counter
	ephemeralErrors metric.Int64Counter
}

// NewChatMetrics registers the counters on meter
func NewChatMetrics(meter metric.Meter) (*ChatMetrics, error) {
	m := &ChatMetrics{}
	var err error

	if m.sessionsStarted, err = meter.Int64Counter("chat_sessions_started_total",
		metric.WithDescription("Chat sessions started")); err != nil {
		return nil, err
	}
	if m.messages, err = meter.Int64Counter("chat_messages_total",
		metric.WithDescription("Messages persisted, by sender")); err != nil {
		return nil, err
	}
	if m.notifications, err = meter.Int64Counter("chat_notifications_total",
		metric.WithDescription("Operator notifications, by result")); err != nil {
		return nil, err
	}
	if m.reaped, err = meter.Int64Counter("chat_sessions_reaped_total",
		metric.WithDescription("Sessions deactivated for inactivity")); err != nil {
		return nil, err
	}
	if m.ephemeralErrors, err = meter.Int64Counter("chat_ephemeral_errors_total",
		metric.WithDescription("Swallowed typing/presence store failures, by operation")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ChatMetrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsStarted.Add(ctx, 1)
}

func (m *ChatMetrics) MessageStored(ctx context.Context, sender string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("sender", sender)))
}

func (m *ChatMetrics) Notification(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *ChatMetrics) SessionsReaped(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(ctx, n)
}

func (m *ChatMetrics) EphemeralError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.ephemeralErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
