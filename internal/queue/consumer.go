package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/service"
)

const maxBackoff = 30 * time.Second

// AuditConsumer appends every event on the exchange to an audit logger.
type AuditConsumer struct {
	URL      string
	Exchange string
	Audit    *zap.Logger // one JSON line per event
	Log      *zap.Logger
}

// Run connects, declares the exchange and the durable audit queue bound to
// every routing key, and consumes until ctx is cancelled.  Lost connections
// are retried with exponential backoff.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(a.URL)
		if err != nil {
			a.Log.Warn("audit consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = a.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Log.Warn("audit consumer: reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (a *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.Log.Warn("audit consumer: set QoS failed", zap.Error(err))
	}
	if err := ch.ExchangeDeclare(a.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(AuditQueue, "#", a.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, AuditQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	a.Log.Info("audit consumer started", zap.String("queue", AuditQueue))

	for d := range msgs {
		if err := a.handle(d.Body); err != nil {
			a.Log.Warn("audit consumer: rejecting message", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (a *AuditConsumer) handle(body []byte) error {
	ev, err := decodeEvent(body)
	if err != nil {
		return err
	}
	a.Audit.Info(ev.Type, auditFields(ev)...)
	return nil
}

func auditFields(ev service.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("subject_id", ev.SubjectID),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.ActorID != "" {
		fields = append(fields, zap.String("actor_id", ev.ActorID), zap.String("actor_role", ev.ActorRole))
	}
	if ev.OwnerID != "" {
		fields = append(fields, zap.String("owner_id", ev.OwnerID))
	}
	return fields
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
