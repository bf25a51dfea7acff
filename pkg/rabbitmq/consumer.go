/**
 * @description
 * This file provides the RabbitMQ consumer used by the transfer and settlement
 * services. A consumer binds one durable queue to a set of routing keys on the
 * shared topic exchange and dispatches each delivery to the handler registered
 * for its routing key. Handlers return true to acknowledge the delivery and
 * false to requeue it for another attempt.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// prefetchCount bounds how many unacknowledged deliveries the broker hands a
// consumer at once.
const prefetchCount = 25

// HandlerFunc processes one delivery body. Returning false requeues it.
type HandlerFunc func(body []byte) bool

// Consumer holds the RabbitMQ connection and channel for consuming messages.
type Consumer struct {
	conn      *amqp091.Connection
	channel   *amqp091.Channel
	done      chan struct{}
	closeOnce sync.Once
}

// NewConsumer connects to the broker and opens a consuming channel.
func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch, done: make(chan struct{})}, nil
}

// ConsumeWithBindings declares the exchange and a durable queue, binds the given
// routing keys, and dispatches deliveries to their handlers until Close is
// called or the channel drops.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]HandlerFunc) error {
	if len(bindings) == 0 {
		return errors.New("no bindings provided")
	}

	if err := c.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]HandlerFunc, len(bindings))
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.channel.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	deliveries, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Printf("level=info component=rabbitmq_consumer msg=\"consuming\" queue=%s exchange=%s bindings=%d", q.Name, exchange, len(handlers))
	go c.dispatch(q.Name, deliveries, handlers)
	return nil
}

func (c *Consumer) dispatch(queueName string, deliveries <-chan amqp091.Delivery, handlers map[string]HandlerFunc) {
	for {
		select {
		case <-c.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Printf("level=warn component=rabbitmq_consumer msg=\"delivery channel closed\" queue=%s", queueName)
				return
			}
			handler, ok := handlers[d.RoutingKey]
			if !ok {
				log.Printf("level=warn component=rabbitmq_consumer msg=\"no handler for routing key; dropping\" queue=%s routing_key=%s", queueName, d.RoutingKey)
				d.Ack(false)
				continue
			}
			if handler(d.Body) {
				d.Ack(false)
			} else {
				log.Printf("level=warn component=rabbitmq_consumer msg=\"handler rejected delivery; requeueing\" queue=%s routing_key=%s", queueName, d.RoutingKey)
				d.Nack(false, true)
			}
		}
	}
}

// Close stops the dispatch loop and closes the channel and connection.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
