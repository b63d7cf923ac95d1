package service

import (
	"errors"
	"net/http"

	commonerrors "github.com/AlibekovAA/user-directory/backend/internal/common/errors"
)

var errNotFound = errors.New("not found")

func newInternalError(code, message string, cause error) commonerrors.DomainError {
	err := commonerrors.NewDomainError(
		code,
		commonerrors.CategoryInternal,
		http.StatusInternalServerError,
		message,
	)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
