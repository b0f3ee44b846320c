package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the websocket instruments. A nil *Metrics records nothing.
type Metrics struct {
	ConnectionsTotal   metric.Int64Counter
	ConnectionsActive  metric.Int64UpDownCounter
	ConnectionDuration metric.Float64Histogram
	MessagesSent       metric.Int64Counter
	MessagesDropped    metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ConnectionsTotal, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections")); err != nil {
		return nil, err
	}
	if m.ConnectionsActive, err = meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections")); err != nil {
		return nil, err
	}
	if m.ConnectionDuration, err = meter.Float64Histogram("websocket_connection_duration_seconds",
		metric.WithDescription("Duration of WebSocket connections"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.MessagesSent, err = meter.Int64Counter("websocket_messages_total",
		metric.WithDescription("Messages queued to clients, by type")); err != nil {
		return nil, err
	}
	if m.MessagesDropped, err = meter.Int64Counter("websocket_dropped_messages_total",
		metric.WithDescription("Messages dropped because a buffer was full")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) connected(ctx context.Context) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Add(ctx, 1)
	m.ConnectionsActive.Add(ctx, 1)
}

func (m *Metrics) disconnected(ctx context.Context, d time.Duration, reason string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Add(ctx, -1)
	m.ConnectionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) sent(ctx context.Context, messageType string, clients int) {
	if m == nil || clients == 0 {
		return
	}
	m.MessagesSent.Add(ctx, int64(clients), metric.WithAttributes(attribute.String("type", messageType)))
}

func (m *Metrics) dropped(ctx context.Context, where string) {
	if m == nil {
		return
	}
	m.MessagesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("where", where)))
}
