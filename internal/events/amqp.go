package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	// Event name and version, e.g. attendance.update.v1
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta  `json:"meta"`
	Data Event `json:"data"`
}

func NewEnvelope(e Event, producer string) Envelope {
	id := uuid.NewString()
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: id,
			Producer:      producer,
			Time:          e.OccurredAt.UTC(),
			Type:          e.Type.RoutingKey() + ".v1",
		},
		Data: e,
	}
}

// AMQPPublisher publishes events to a durable topic exchange with publisher
// confirms, one channel per publish.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	producer string
	logger   zerolog.Logger
}

func NewAMQPPublisher(conn *amqp.Connection, exchange, producer string, logger zerolog.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, producer: producer, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	env := NewEnvelope(e, p.producer)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("confirm mode: %w", err)
	}

	key := e.Type.RoutingKey()
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         p.producer,
		Headers:       amqp.Table{"tenant_id": e.TenantID},
		Body:          body,
	})
	if err != nil {
		return err
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("broker nacked publish")
	}
	p.logger.Debug().Str("key", key).Str("exchange", p.exchange).Str("tenant_id", e.TenantID).Msg("published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// FallbackPublisher stands in when no broker is configured.
type FallbackPublisher struct {
	logger zerolog.Logger
}

func NewFallback(logger zerolog.Logger) *FallbackPublisher {
	return &FallbackPublisher{logger: logger}
}

func (p *FallbackPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Debug().Str("key", e.Type.RoutingKey()).Msg("no broker configured, skipped publish")
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}

const maxDialDelay = 60 * time.Second

// DialWithRetry connects with exponential backoff, giving up after attempts
// or when ctx ends.
func DialWithRetry(ctx context.Context, url string, attempts int, delay time.Duration, logger zerolog.Logger) (*amqp.Connection, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			if i > 1 {
				logger.Info().Int("attempt", i).Msg("rabbit connected")
			}
			return conn, nil
		}
		lastErr = err

		sleep := delay << (i - 1)
		if sleep > maxDialDelay || sleep <= 0 {
			sleep = maxDialDelay
		}
		logger.Warn().Err(err).Int("attempt", i).Dur("sleep", sleep).Msg("rabbit dial failed")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}
