package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName 所有领域事件发布到这个 topic exchange
const ExchangeName = "smartmail.events"

// dial 建立连接并打开一个声明好 exchange 的 channel
func dial(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName("smartmail-publisher")

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// durable, 不自动删除
	if err := ch.ExchangeDeclare(ExchangeName, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", ExchangeName, err)
	}
	return conn, ch, nil
}
