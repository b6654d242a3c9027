// Package rabbitmq publishes run events to a RabbitMQ exchange.
package rabbitmq

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"device-report/progress"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

const (
	eventBuffer  = 256
	drainTimeout = 5 * time.Second
)

// Publisher sends run events from a background goroutine. Notify never
// waits on the broker; events that do not fit in the queue are dropped.
type Publisher struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string

	mu     sync.RWMutex
	closed bool
	events chan progress.Event
	done   chan struct{}
}

func newPublisher(ch channel, exchange, routingKey string, buffer int) *Publisher {
	p := &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		events:     make(chan progress.Event, buffer),
		done:       make(chan struct{}),
	}
	go p.drain()
	return p
}

// NewPublisher connects to amqpURL and declares a durable direct exchange.
func NewPublisher(amqpURL, exchangeName, routingKey string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := newPublisher(ch, exchangeName, routingKey, eventBuffer)
	p.conn = conn
	return p, nil
}

// Publish sends message as JSON with the configured routing key.
func (p *Publisher) Publish(message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	err = p.channel.Publish(
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Publisher) drain() {
	defer close(p.done)
	for e := range p.events {
		if err := p.Publish(e); err != nil {
			log.WithField("run_id", e.RunID).Warnf("Failed to publish %s event: %v", e.Kind, err)
		}
	}
}

// Notify queues a run event for publishing. It is safe to call after Close.
func (p *Publisher) Notify(e progress.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- e:
	default:
		log.WithField("run_id", e.RunID).Warnf("Dropping %s event: publish queue is full", e.Kind)
	}
}

// Close flushes queued events, waiting at most drainTimeout, then closes
// the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(drainTimeout):
		log.Warnf("Closing publisher with %d events unsent", len(p.events))
	}

	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close channel: %w", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return firstErr
}
