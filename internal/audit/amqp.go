package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

// DefaultExchange receives ledger entries when no exchange is configured.
const DefaultExchange = "ledger_events"

// publishChannel is the subset of *amqp.Channel the publisher uses.
type publishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes entries to a durable topic exchange with the routing
// key ledger.entry.<type>.
type AMQPPublisher struct {
	exchange string
	reopen   func() (publishChannel, error)

	mu       sync.Mutex
	channel  publishChannel
	declared bool
}

// NewAMQPPublisher opens a channel on conn.
func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("amqp connection is required")
	}
	open := func() (publishChannel, error) {
		return conn.Channel()
	}
	return newAMQPPublisher(open, exchange)
}

func newAMQPPublisher(open func() (publishChannel, error), exchange string) (*AMQPPublisher, error) {
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}
	ch, err := open()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &AMQPPublisher{exchange: exchange, reopen: open, channel: ch}, nil
}

// RoutingKey returns the routing key an entry is published with.
func RoutingKey(t EntryType) string {
	return "ledger.entry." + string(t)
}

type entryEvent struct {
	Entry
	OwnerID int64 `json:"user_id"`
}

// Record publishes the entry. A failed publish reopens the channel once.
func (p *AMQPPublisher) Record(ctx context.Context, caller identity.Identity, entry Entry) error {
	body, err := json.Marshal(entryEvent{Entry: entry, OwnerID: caller.OwnerID()})
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.publish(ctx, RoutingKey(entry.Type), msg); err == nil {
		return nil
	}
	ch, err := p.reopen()
	if err != nil {
		return failure.Wrap(failure.ErrServiceUnavailable, err, "reopen amqp channel")
	}
	_ = p.channel.Close()
	p.channel = ch
	p.declared = false
	if err := p.publish(ctx, RoutingKey(entry.Type), msg); err != nil {
		return failure.Wrap(failure.ErrServiceUnavailable, err, "publish ledger entry")
	}
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		p.declared = true
	}
	return p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

// Close closes the channel. The connection belongs to the caller.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}
