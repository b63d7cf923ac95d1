package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"

	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/common/resilience"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "08000", "08003", "08006", "08001", "08004", "08007", "08P01":
			return true
		case "40001", "40P01":
			return true
		case "55P03":
			return true
		}
	}
	return false
}

// RetryWithBackoff retries operation on connection, serialization and lock
// errors only. Everything else is returned after the first attempt.
func RetryWithBackoff(ctx context.Context, log *logger.Logger, config RetryConfig, operation func(context.Context) error) error {
	attempt := 0
	policy := resilience.ExponentialPolicy(config.MaxAttempts, config.InitialDelay, config.MaxDelay)
	policy.Retryable = func(err error) bool {
		if !isRetryableError(err) {
			return false
		}
		log.Warnf("database operation failed (attempt %d/%d): %v, retrying", attempt, config.MaxAttempts, err)
		return true
	}

	err := resilience.WithRetry(ctx, policy, func(ctx context.Context) error {
		attempt++
		return operation(ctx)
	})
	if err == nil {
		if attempt > 1 {
			log.Infof("database operation succeeded after %d attempts", attempt)
		}
		return nil
	}
	if attempt > 1 && isRetryableError(err) {
		return fmt.Errorf("database operation failed after %d attempts: %w", attempt, err)
	}
	return err
}
