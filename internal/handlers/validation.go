package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	pkghttp "github.com/BradenHooton/idguard/pkg/http"
)

// ValidationErrorResponse represents a validation error with field-level details
type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validate is shared by every handler; custom tags are registered once here
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or a nil func
	_ = v.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
		return pkghttp.ValidSessionID(fl.Field().String())
	})
	return v
}

// ValidateRequest validates a request struct and returns the first failure
// as a client-facing message
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return fmt.Errorf("validation failed: %w", err)
	}

	first := ValidationErrorResponse{
		Field:   ve[0].Field(),
		Message: formatValidationError(ve[0]),
	}
	return fmt.Errorf("validation failed: %s: %s", first.Field, first.Message)
}

// ValidateSessionID checks a session id taken from a path, header or body
func ValidateSessionID(id string) error {
	if err := validate.Var(id, "required,sessionid"); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return fmt.Errorf("invalid session id: %s", formatValidationError(ve[0]))
		}
		return fmt.Errorf("invalid session id: %w", err)
	}
	return nil
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "sessionid":
		return fmt.Sprintf("must be a token of at most %d letters, digits, '.', '_', ':' or '-'", pkghttp.MaxSessionIDLength)
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
