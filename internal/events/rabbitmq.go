package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
)

var errPublisherClosed = errors.New("rabbitmq publisher closed")

type RabbitConfig struct {
	URL               string
	Exchange          string
	RoutingKey        string
	CorrelationHeader string
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes in confirm mode, one message in flight at a
// time, and waits for the broker's ack or nack.
type RabbitPublisher struct {
	conn       *amqp.Connection
	ch         amqpChannel
	confirms   chan amqp.Confirmation
	exchange   string
	routingKey string
	header     string
	timeout    time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	lastTag uint64
}

func NewRabbitPublisher(cfg RabbitConfig, log *logger.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	p, err := newRabbitPublisher(ch, cfg, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	log.Infof("rabbitmq publisher ready: exchange=%s routing_key=%s", cfg.Exchange, cfg.RoutingKey)
	return p, nil
}

func newRabbitPublisher(ch amqpChannel, cfg RabbitConfig, log *logger.Logger) (*RabbitPublisher, error) {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	header := cfg.CorrelationHeader
	if header == "" {
		header = constants.DefaultCorrelationHeader
	}

	return &RabbitPublisher{
		ch:         ch,
		confirms:   ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		header:     header,
		timeout:    constants.BrokerConfirmTimeout,
		log:        log,
	}, nil
}

func (p *RabbitPublisher) Name() string { return "rabbitmq" }

func (p *RabbitPublisher) Publish(ctx context.Context, correlationID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		Headers:       amqp.Table{p.header: correlationID},
		Timestamp:     time.Now().UTC(),
		Body:          payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.exchange, err)
	}
	p.lastTag++

	return p.waitForConfirm(ctx, p.lastTag)
}

// waitForConfirm skips confirmations left over from publishes that timed
// out before their ack arrived.
func (p *RabbitPublisher) waitForConfirm(ctx context.Context, tag uint64) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return errPublisherClosed
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if !confirm.Ack {
				return fmt.Errorf("%w: delivery_tag=%d", ErrNotAcknowledged, confirm.DeliveryTag)
			}
			return nil
		case <-timer.C:
			return fmt.Errorf("rabbitmq confirm timeout for delivery_tag=%d", tag)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *RabbitPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
