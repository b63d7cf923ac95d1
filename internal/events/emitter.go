package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/common/resilience"
	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

var (
	ErrInvalidEmitInput = errors.New("correlation id and event are required")
	ErrNotAcknowledged  = errors.New("event was not acknowledged by the broker")
)

// Publisher sends a serialized event and returns once the broker has
// acknowledged it. A negative acknowledgment is reported as
// ErrNotAcknowledged.
type Publisher interface {
	Publish(ctx context.Context, correlationID string, payload []byte) error
	Name() string
	Close() error
}

type FailureRecorder interface {
	Record(ctx context.Context, correlationID string, payload []byte, reason string)
}

type EmitterConfig struct {
	Timeout                 time.Duration
	RetryAttempts           int
	RetryDelay              time.Duration
	CircuitBreakerThreshold uint32
	CircuitBreakerReset     time.Duration
}

type Emitter struct {
	publisher Publisher
	recorder  FailureRecorder
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryPolicy
	timeout   time.Duration
	log       *logger.Logger
}

func NewEmitter(publisher Publisher, recorder FailureRecorder, cfg EmitterConfig, log *logger.Logger) *Emitter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultEmitTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = constants.DefaultEmitRetryDelay
	}
	if cfg.CircuitBreakerThreshold == 0 {
		cfg.CircuitBreakerThreshold = constants.DefaultCircuitBreakerThreshold
	}
	if cfg.CircuitBreakerReset <= 0 {
		cfg.CircuitBreakerReset = constants.DefaultCircuitBreakerReset
	}

	return &Emitter{
		publisher: publisher,
		recorder:  recorder,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Threshold:  cfg.CircuitBreakerThreshold,
			ResetAfter: cfg.CircuitBreakerReset,
			Name:       "events_" + publisher.Name(),
			Logger:     log,
			IsFailure: func(err error) bool {
				return !errors.Is(err, ErrNotAcknowledged) && !errors.Is(err, context.Canceled)
			},
		}),
		retry:   resilience.ConstantPolicy(cfg.RetryAttempts, cfg.RetryDelay),
		timeout: cfg.Timeout,
		log:     log,
	}
}

// Emit publishes event under correlationID. Invalid input fails fast and is
// never recorded. A negative acknowledgment, or a transport failure that
// survives the retry budget, is handed to the failure recorder and returned.
func (e *Emitter) Emit(ctx context.Context, correlationID string, event *domain.ChangeEvent) error {
	if strings.TrimSpace(correlationID) == "" || event == nil {
		return ErrInvalidEmitInput
	}

	fields := logger.Fields{
		"correlation_id": correlationID,
		"username":       event.Username,
		"broker":         e.publisher.Name(),
	}

	payload, err := event.Marshal()
	if err != nil {
		fields["action"] = "emit_encode_failed"
		e.log.WithFields(ctx, fields).Errorf("failed to encode change event: %v", err)
		return fmt.Errorf("encode change event: %w", err)
	}

	start := time.Now()
	err = resilience.WithRetry(ctx, e.retry, func(ctx context.Context) error {
		return e.breaker.Call(ctx, func(ctx context.Context) error {
			return resilience.WithTimeout(ctx, e.timeout, func(ctx context.Context) error {
				err := e.publisher.Publish(ctx, correlationID, payload)
				if errors.Is(err, ErrNotAcknowledged) {
					return resilience.Permanent(err)
				}
				return err
			})
		})
	})
	metrics.EventEmitDurationSeconds.WithLabelValues(e.publisher.Name()).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.EventsEmittedTotal.WithLabelValues(e.publisher.Name(), "ack").Inc()
		fields["action"] = "emit_acknowledged"
		e.log.WithFields(ctx, fields).Info("change event acknowledged")
		return nil
	}

	result := "error"
	if errors.Is(err, ErrNotAcknowledged) {
		result = "nack"
	}
	metrics.EventsEmittedTotal.WithLabelValues(e.publisher.Name(), result).Inc()
	fields["action"] = "emit_failed"
	e.log.WithFields(ctx, fields).Warnf("change event not delivered: %v", err)

	e.recorder.Record(ctx, correlationID, payload, err.Error())
	return err
}
