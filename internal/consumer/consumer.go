// Package consumer feeds channel-adapter message events from RabbitMQ into
// the routing engine.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/models"
	"github.com/omnidesk/backend/internal/routing"
)

const (
	KeyInbound  = "chat.inbound.v1"
	KeyOutbound = "chat.outbound.v1"

	handlerTimeout = 10 * time.Second
	prefetch       = 10
)

// ErrMalformed marks deliveries that can never succeed; they are dropped
// instead of requeued.
var ErrMalformed = errors.New("malformed message")

// MessageHandler applies decoded messages. A returned error requeues the
// delivery unless it wraps ErrMalformed.
type MessageHandler interface {
	ProcessIncomingMessage(ctx context.Context, msg routing.IncomingMessage) (models.Attendance, error)
	ProcessOutgoingMessage(ctx context.Context, msg routing.OutgoingMessage) (*models.Attendance, error)
}

type envelope struct {
	Meta json.RawMessage `json:"meta"`
	Data messageData     `json:"data"`
}

type messageData struct {
	TenantID     string     `json:"tenantId" validate:"required"`
	LeadID       string     `json:"leadId" validate:"required"`
	ConnectionID *string    `json:"connectionId"`
	UserID       *string    `json:"userId"`
	Content      *string    `json:"content"`
	Timestamp    *time.Time `json:"timestamp"`
}

// Dispatcher decodes message events and routes them by key.
type Dispatcher struct {
	handler  MessageHandler
	validate *validator.Validate
}

func NewDispatcher(h MessageHandler) *Dispatcher {
	return &Dispatcher{handler: h, validate: validator.New()}
}

func (d *Dispatcher) decode(body []byte) (messageData, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return messageData{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := d.validate.Struct(env); err != nil {
		return messageData{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Data, nil
}

func (d *Dispatcher) Handle(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case KeyInbound:
		m, err := d.decode(body)
		if err != nil {
			return err
		}
		_, err = d.handler.ProcessIncomingMessage(ctx, routing.IncomingMessage{
			TenantID:     m.TenantID,
			LeadID:       m.LeadID,
			ConnectionID: m.ConnectionID,
			Content:      m.Content,
			Timestamp:    m.Timestamp,
		})
		return err
	case KeyOutbound:
		m, err := d.decode(body)
		if err != nil {
			return err
		}
		_, err = d.handler.ProcessOutgoingMessage(ctx, routing.OutgoingMessage{
			TenantID:     m.TenantID,
			LeadID:       m.LeadID,
			UserID:       m.UserID,
			ConnectionID: m.ConnectionID,
			Content:      m.Content,
			Timestamp:    m.Timestamp,
		})
		return err
	default:
		return fmt.Errorf("%w: no handler for %q", ErrMalformed, routingKey)
	}
}

// Subscriber consumes a durable queue bound to the message exchange and
// hands deliveries to a fixed pool of workers.
type Subscriber struct {
	conn       *amqp091.Connection
	ch         *amqp091.Channel
	exchange   string
	dispatcher *Dispatcher
	logger     zerolog.Logger
	msgChan    chan amqp091.Delivery
	done       chan struct{}
	wg         sync.WaitGroup
	once       sync.Once
	closeOnce  sync.Once
	workers    int
}

func NewSubscriber(conn *amqp091.Connection, exchange string, d *Dispatcher, workers int, logger zerolog.Logger) (*Subscriber, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}
	return &Subscriber{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		dispatcher: d,
		logger:     logger,
		msgChan:    make(chan amqp091.Delivery, prefetch),
		done:       make(chan struct{}),
		workers:    workers,
	}, nil
}

func (s *Subscriber) Start(queue string) error {
	var startErr error
	s.once.Do(func() {
		if err := s.setupQueue(queue); err != nil {
			startErr = err
			return
		}
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.workerLoop()
		}
		s.logger.Info().Str("queue", queue).Int("workers", s.workers).Msg("message consumer started")
	})
	return startErr
}

func (s *Subscriber) setupQueue(queue string) error {
	if err := s.ch.Qos(prefetch, 0, false); err != nil {
		return err
	}
	q, err := s.ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for _, key := range []string{KeyInbound, KeyOutbound} {
		if err := s.ch.QueueBind(q.Name, key, s.exchange, false, nil); err != nil {
			return err
		}
	}
	msgs, err := s.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		defer close(s.msgChan)
		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case s.msgChan <- msg:
				case <-s.done:
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()
	return nil
}

func (s *Subscriber) workerLoop() {
	defer s.wg.Done()
	for msg := range s.msgChan {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		err := s.dispatcher.Handle(ctx, msg.RoutingKey, msg.Body)
		cancel()
		switch {
		case errors.Is(err, ErrMalformed):
			s.logger.Warn().Err(err).Str("key", msg.RoutingKey).Str("message_id", msg.MessageId).Msg("dropping message")
			_ = msg.Nack(false, false)
		case err != nil:
			s.logger.Error().Err(err).Str("key", msg.RoutingKey).Msg("handler error")
			_ = msg.Nack(false, true)
		default:
			_ = msg.Ack(false)
		}
	}
}

// Close stops consuming and waits for in-flight deliveries. The connection
// is owned by the caller.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.ch.Close()
	})
	return err
}
