package resilience

import (
	"context"
	"errors"
	"time"

	pgx "github.com/jackc/pgx/v4"
	"github.com/sony/gobreaker"

	commonerrors "github.com/AlibekovAA/user-directory/backend/internal/common/errors"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
)

type CircuitBreaker struct {
	breaker   *gobreaker.CircuitBreaker
	timeout   time.Duration
	name      string
	log       *logger.Logger
	isFailure func(error) bool
}

type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold  uint32
	Timeout    time.Duration
	ResetAfter time.Duration
	Name       string
	Logger     *logger.Logger
	// IsFailure decides whether an error counts against the breaker.
	// Defaults to every error except pgx.ErrNoRows and caller cancellation.
	IsFailure func(error) bool
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		timeout:   config.Timeout,
		name:      config.Name,
		log:       config.Logger,
		isFailure: config.IsFailure,
	}
	if cb.isFailure == nil {
		cb.isFailure = defaultIsFailure
	}

	threshold := config.Threshold
	if threshold == 0 {
		threshold = 1
	}

	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 1,
		Timeout:     config.ResetAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !cb.isFailure(err)
		},
		OnStateChange: cb.onStateChange,
	})
	cb.setState(gobreaker.StateClosed)

	return cb
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, pgx.ErrNoRows) && !errors.Is(err, context.Canceled)
}

func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.setState(to)
	metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	if cb.log != nil {
		cb.log.Warnf("circuit breaker [%s]: %s -> %s", name, from, to)
	}
}

func (cb *CircuitBreaker) setState(state gobreaker.State) {
	if cb.name == "" {
		return
	}
	var value float64
	switch state {
	case gobreaker.StateOpen:
		value = 1
	case gobreaker.StateHalfOpen:
		value = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(value)
}

func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	return cb.CallWithFallback(ctx, fn, nil)
}

func (cb *CircuitBreaker) CallWithFallback(ctx context.Context, fn func(context.Context) error, fallback func() error) error {
	_, err := cb.breaker.Execute(func() (interface{}, error) {
		if cb.timeout <= 0 {
			return nil, fn(ctx)
		}
		callCtx, cancel := context.WithTimeout(ctx, cb.timeout)
		defer cancel()
		return nil, fn(callCtx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if cb.log != nil {
			if fallback != nil {
				cb.log.Warnf("circuit breaker [%s]: circuit is open, using fallback", cb.name)
			} else {
				cb.log.Warnf("circuit breaker [%s]: circuit is open, rejecting request", cb.name)
			}
		}
		if fallback != nil {
			return fallback()
		}
		return commonerrors.ErrCircuitOpen.WithCause(err)
	}

	if cb.isFailure(err) && cb.name != "" {
		metrics.CircuitBreakerFailures.WithLabelValues(cb.name).Inc()
	}

	if fallback != nil {
		if cb.log != nil {
			cb.log.Infof("circuit breaker [%s]: operation failed, using fallback", cb.name)
		}
		return fallback()
	}
	return err
}
