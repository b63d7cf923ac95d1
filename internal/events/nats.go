package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
)

type NATSConfig struct {
	URL               string
	Stream            string
	Subject           string
	CorrelationHeader string
}

type jetStreamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type NATSPublisher struct {
	nc      *nats.Conn
	js      jetStreamPublisher
	subject string
	header  string
	log     *logger.Logger
}

func NewNATSPublisher(ctx context.Context, cfg NATSConfig, log *logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(constants.DBApplicationName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, constants.BrokerConnectTimeout)
	defer cancel()

	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		log.Warnf("failed to create %s stream (may already exist): %v", cfg.Stream, err)
	}

	p := newNATSPublisher(js, cfg.Subject, cfg.CorrelationHeader, log)
	p.nc = nc
	log.Infof("nats publisher ready: stream=%s subject=%s", cfg.Stream, cfg.Subject)
	return p, nil
}

func newNATSPublisher(js jetStreamPublisher, subject, header string, log *logger.Logger) *NATSPublisher {
	if header == "" {
		header = constants.DefaultCorrelationHeader
	}
	return &NATSPublisher{js: js, subject: subject, header: header, log: log}
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Publish(ctx context.Context, correlationID string, payload []byte) error {
	msg := nats.NewMsg(p.subject)
	msg.Header.Set(p.header, correlationID)
	msg.Data = payload

	ack, err := p.js.PublishMsg(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	if ack == nil {
		return ErrNotAcknowledged
	}

	p.log.WithFields(ctx, logger.Fields{
		"correlation_id": correlationID,
		"stream":         ack.Stream,
		"sequence":       ack.Sequence,
	}).Debug("jetstream publish acknowledged")
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
