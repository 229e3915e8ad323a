package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"smartmail/pkg/metrics"
	"smartmail/pkg/otel"
	"smartmail/pkg/trace"
)

var ErrNotConnected = errors.New("mq publisher is not connected")

type Publisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewPublisher 连接 RabbitMQ 并声明事件 exchange
func NewPublisher(url string) (*Publisher, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch}, nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive
func (p *Publisher) IsConnected() bool {
	if p == nil || p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed()
}

// Publish publishes a JSON event to the exchange with the given routing key.
// The trace id and OpenTelemetry context travel in the message headers.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if !p.IsConnected() {
		metrics.IncrementEventPublish(routingKey, "not_connected")
		return ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}

	ctx, span := otel.MQPublishSpan(ctx, routingKey, ExchangeName)
	defer span.End()

	headers := amqp091.Table{}
	if traceID := trace.FromContext(ctx); traceID != "" {
		headers[trace.HeaderName()] = traceID
	}
	otel.InjectMQHeaders(ctx, headers)

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
	p.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		metrics.IncrementEventPublish(routingKey, "error")
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	metrics.IncrementEventPublish(routingKey, "ok")
	return nil
}
