package events

import (
	"context"
	"fmt"

	"github.com/AlibekovAA/user-directory/backend/internal/common/config"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
)

// LogPublisher acknowledges every event after logging it. It backs the
// "none" broker setting.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(ctx context.Context, correlationID string, payload []byte) error {
	p.log.WithFields(ctx, logger.Fields{
		"correlation_id": correlationID,
		"action":         "event_logged",
	}).Infof("change event: %s", payload)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

func NewPublisher(ctx context.Context, cfg config.EventsConfig, log *logger.Logger) (Publisher, error) {
	switch cfg.Broker {
	case config.BrokerNATS:
		return NewNATSPublisher(ctx, NATSConfig{
			URL:               cfg.NATSURL,
			Stream:            cfg.Stream,
			Subject:           cfg.Subject,
			CorrelationHeader: cfg.CorrelationHeader,
		}, log)
	case config.BrokerRabbitMQ:
		return NewRabbitPublisher(RabbitConfig{
			URL:               cfg.RabbitMQURL,
			Exchange:          cfg.Exchange,
			RoutingKey:        cfg.RoutingKey,
			CorrelationHeader: cfg.CorrelationHeader,
		}, log)
	case config.BrokerNone:
		return NewLogPublisher(log), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownBroker, cfg.Broker)
	}
}
