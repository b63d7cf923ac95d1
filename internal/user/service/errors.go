package service

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	commonerrors "github.com/AlibekovAA/user-directory/backend/internal/common/errors"
)

const (
	usernameNotUniqueMessage = "Username must be unique"
	emailNotUniqueMessage    = "E-mail must be unique"
)

var (
	ErrValidation = commonerrors.NewDomainError(
		"VALIDATION_FAILED",
		commonerrors.CategoryValidation,
		http.StatusBadRequest,
		"validation failed",
	)

	ErrUniquenessViolation = commonerrors.NewDomainError(
		"UNIQUENESS_VIOLATION",
		commonerrors.CategoryConflict,
		http.StatusUnprocessableEntity,
		"Uniqueness Constraint Violation",
	)

	ErrStorage = commonerrors.NewDomainError(
		"STORAGE_FAILURE",
		commonerrors.CategoryInternal,
		http.StatusInternalServerError,
		"user storage is unavailable",
	)
)

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every invalid field. Field and Reason repeat the
// first entry.
type ValidationError struct {
	commonerrors.DomainError
	Field  string
	Reason string
	Errors []FieldError
}

func newValidationError(errs []FieldError) *ValidationError {
	return &ValidationError{
		DomainError: ErrValidation,
		Field:       errs[0].Field,
		Reason:      errs[0].Reason,
		Errors:      errs,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.DomainError.Message(), e.Message())
}

func (e *ValidationError) Message() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s %s", fe.Field, fe.Reason))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.DomainError, target)
}

func (e *ValidationError) Details() map[string]any {
	return map[string]any{"field": e.Field, "reason": e.Reason, "errors": e.Errors}
}

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// UniquenessViolation carries every conflicting field at once, never a
// partial set.
type UniquenessViolation struct {
	commonerrors.DomainError
	Violations []Violation
}

func newUniquenessViolation(set map[Violation]struct{}) *UniquenessViolation {
	violations := make([]Violation, 0, len(set))
	for v := range set {
		violations = append(violations, v)
	}
	sort.Slice(violations, func(i, j int) bool { return violations[i].Field > violations[j].Field })
	return &UniquenessViolation{DomainError: ErrUniquenessViolation, Violations: violations}
}

func (e *UniquenessViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.DomainError.Message(), strings.Join(e.Fields(), ", "))
}

func (e *UniquenessViolation) Is(target error) bool {
	return errors.Is(e.DomainError, target)
}

func (e *UniquenessViolation) Fields() []string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func (e *UniquenessViolation) Details() map[string]any {
	return map[string]any{"violations": e.Violations}
}

func storageError(err error) error {
	return ErrStorage.WithCause(err)
}
