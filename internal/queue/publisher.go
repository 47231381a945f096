package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/service"
)

const (
	defaultDialTimeout = 2 * time.Second
	defaultCooldown    = 10 * time.Second
)

// ErrBrokerUnavailable is returned by Publish while a failed connection
// attempt is cooling down.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

// Publisher sends events to a topic exchange.  The connection is opened
// lazily and reopened after the broker drops it.  A failed dial is not
// retried until the cooldown has passed, so a dead broker costs at most one
// dial timeout per cooldown instead of one per event.
type Publisher struct {
	url      string
	exchange string
	log      *zap.Logger

	dialTimeout time.Duration
	cooldown    time.Duration

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	nextRetry time.Time
}

// NewPublisher returns a publisher for exchange on the broker at url.  A
// failed first connection is logged; publishing retries it.
func NewPublisher(url, exchange string, log *zap.Logger) *Publisher {
	p := &Publisher{
		url:         url,
		exchange:    exchange,
		log:         log,
		dialTimeout: defaultDialTimeout,
		cooldown:    defaultCooldown,
	}
	p.mu.Lock()
	if err := p.connect(); err != nil {
		log.Warn("rabbitmq unavailable, will retry on publish", zap.Error(err))
	}
	p.mu.Unlock()
	return p
}

// connect must be called with p.mu held.
func (p *Publisher) connect() error {
	p.closeLocked()
	if err := p.dial(); err != nil {
		p.nextRetry = time.Now().Add(p.cooldown)
		return err
	}
	p.nextRetry = time.Time{}
	return nil
}

func (p *Publisher) dial() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish implements service.EventPublisher.  Messages are persistent and
// routed by event type.
func (p *Publisher) Publish(ctx context.Context, ev service.Event) error {
	body, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		if time.Now().Before(p.nextRetry) {
			return fmt.Errorf("publish %s: %w", ev.Type, ErrBrokerUnavailable)
		}
		if err := p.connect(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// LogPublisher writes events to a logger instead of a broker.  It is used
// when no broker is configured.
type LogPublisher struct{ Log *zap.Logger }

func (p LogPublisher) Publish(_ context.Context, ev service.Event) error {
	p.Log.Debug("event", auditFields(ev)...)
	return nil
}
