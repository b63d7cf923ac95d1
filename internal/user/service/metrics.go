package service

import (
	"errors"

	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
)

func recordOperation(operation string, err error) {
	metrics.UserOperationsTotal.WithLabelValues(operation, operationResult(err)).Inc()
}

func operationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrUniquenessViolation):
		return "conflict"
	default:
		return "error"
	}
}
