package security

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
	MaxEmailLength = 254

	// TagNotBlank is the validation tag rejecting empty or whitespace-only strings.
	TagNotBlank = "notblank"
)

// ErrInvalidEmailParam is returned when a path email fails ValidateEmailParam.
var ErrInvalidEmailParam = errors.New("email contains invalid characters")

// RegisterValidators installs the custom rules used by request DTOs on v.
func RegisterValidators(v *validator.Validate) error {
	return v.RegisterValidation(TagNotBlank, notBlank, true)
}

// NewValidator returns a validator with custom rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	// RegisterValidation only fails for empty or reserved tags.
	_ = RegisterValidators(v)
	return v
}

// notBlank reports whether a string (or *string) field has non-space content.
func notBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.String:
		return strings.TrimSpace(field.String()) != ""
	case reflect.Ptr:
		if field.IsNil() {
			return true
		}
		return strings.TrimSpace(field.Elem().String()) != ""
	default:
		return true
	}
}

// ValidateEmailParam checks an email received outside a request body, e.g. as
// a path segment. It does not check well-formedness, only that the value is
// safe to pass to the store.
func ValidateEmailParam(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("email is required")
	}

	if len(email) > MaxEmailLength {
		return "", errors.New("email too long")
	}

	for _, r := range email {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' || r == '\\' {
			return "", ErrInvalidEmailParam
		}
	}

	return email, nil
}

// FieldMessages renders validation failures as lower-case field name → message.
func FieldMessages(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			fields[field] = "is required"
		case TagNotBlank:
			fields[field] = "must not be blank"
		case "email":
			fields[field] = "must be a valid email"
		case "min":
			if e.Kind() == reflect.String {
				fields[field] = fmt.Sprintf("must be at least %s characters", e.Param())
			} else {
				fields[field] = fmt.Sprintf("must be greater than or equal to %s", e.Param())
			}
		case "max":
			fields[field] = fmt.Sprintf("must be at most %s characters", e.Param())
		default:
			fields[field] = "is invalid"
		}
	}
	return fields
}
