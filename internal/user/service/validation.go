package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

type identityInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
}

type profileInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	FirstName string `json:"firstName" validate:"required,min=3,max=50"`
}

func newProfileInput(p domain.UserProfile) profileInput {
	return profileInput{Email: p.Email, FirstName: p.FirstName}
}

func validateUser(u domain.User) error {
	return validateStruct(identityInput{Username: u.Username}, newProfileInput(u.UserProfile))
}

func validateProfile(p domain.UserProfile) error {
	return validateStruct(newProfileInput(p))
}

// validateStruct reports every failing field of every input, in order.
func validateStruct(inputs ...any) error {
	var failed []FieldError
	for _, input := range inputs {
		err := getValidator().Struct(input)
		if err == nil {
			continue
		}

		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return ErrValidation.WithCause(err)
		}
		for _, fe := range fieldErrs {
			failed = append(failed, FieldError{Field: fe.Field(), Reason: describeFieldError(fe)})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return newValidationError(failed)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid e-mail address"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
