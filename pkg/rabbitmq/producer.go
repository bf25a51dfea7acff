/**
 * @description
 * This package provides a simple producer for publishing messages to RabbitMQ.
 * It encapsulates the logic for connecting to RabbitMQ and publishing a message
 * to a specific exchange and routing key. The transfer, account, and settlement
 * services all publish their events through this producer.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// EventsExchange is the durable topic exchange shared by all modernbank services.
const EventsExchange = "modernbank.events"

// Routing keys for the settlement rail and the CQRS read-model feed.
const (
	RouteSettlementRequested = "transfer.settlement.requested"
	RouteSettlementResult    = "transfer.settlement.result"
	RouteTransferRecorded    = "cqrs.transfer.recorded"
	RouteTransactionRecorded = "cqrs.transaction.recorded"
	RouteAccountBalance      = "cqrs.account.balance"
)

// SettlementRequestedEvent is published by the transfer-service when an external
// transfer has been withdrawn and handed to the counterparty rail.
type SettlementRequestedEvent struct {
	CustomerID         string    `json:"customer_id"`
	TransferSequence   int       `json:"transfer_sequence"`
	SourceAccount      string    `json:"source_account"`
	SourceTransaction  int       `json:"source_transaction_sequence"`
	DestinationAccount string    `json:"destination_account"`
	Amount             int64     `json:"amount"`
	SenderMemo         string    `json:"sender_memo"`
	Timestamp          time.Time `json:"timestamp"`
}

// SettlementResultEvent is published by the settlement rail once the counterparty
// has accepted or rejected an external transfer.
type SettlementResultEvent struct {
	CustomerID        string    `json:"customer_id"`
	TransferSequence  int       `json:"transfer_sequence"`
	SourceAccount     string    `json:"source_account"`
	SourceTransaction int       `json:"source_transaction_sequence"`
	Decision          string    `json:"decision"` // "confirm" or "cancel"
	Reason            string    `json:"reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	PublishSettlementRequested(ctx context.Context, event SettlementRequestedEvent) error
	PublishSettlementResult(ctx context.Context, event SettlementResultEvent) error
	Close()
}

// EventProducerFallback is a minimal no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (p *EventProducerFallback) PublishSettlementRequested(ctx context.Context, event SettlementRequestedEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"settlement request publish skipped\" customer_id=%s seq=%d", event.CustomerID, event.TransferSequence)
	return nil
}

func (p *EventProducerFallback) PublishSettlementResult(ctx context.Context, event SettlementResultEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"settlement result publish skipped\" customer_id=%s seq=%d", event.CustomerID, event.TransferSequence)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// Publish sends a message to a specific exchange with a routing key.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	// Ensure the exchange exists (durable topic)
	if err := p.channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", exchange, err)
		// Attempt simple channel reopen once
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				if err2 := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err2 != nil {
					return err2
				}
			} else {
				return chErr
			}
		} else {
			return err
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        jsonBody,
		},
	)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		// One-shot retry: reopen channel and try again
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				// re-declare exchange and retry
				if exErr := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); exErr == nil {
					err = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
						ContentType: "application/json",
						Timestamp:   time.Now(),
						Body:        jsonBody,
					})
					if err == nil {
						return nil
					}
				}
			}
		}
		return err
	}
	return nil
}

// PublishSettlementRequested publishes an external transfer to the settlement rail.
func (p *EventProducer) PublishSettlementRequested(ctx context.Context, event SettlementRequestedEvent) error {
	return p.Publish(ctx, EventsExchange, RouteSettlementRequested, event)
}

// PublishSettlementResult publishes the counterparty decision for an external transfer.
func (p *EventProducer) PublishSettlementResult(ctx context.Context, event SettlementResultEvent) error {
	return p.Publish(ctx, EventsExchange, RouteSettlementResult, event)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
