package utils

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	// relpath rejects parent directory segments and NUL bytes. Leading
	// separators are allowed; subpaths are trimmed before use.
	_ = v.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
		value := strings.ReplaceAll(fl.Field().String(), `\`, "/")
		for _, segment := range strings.Split(value, "/") {
			if segment == ".." {
				return false
			}
		}
		return !strings.Contains(value, "\x00")
	})

	return v
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsSensitiveField checks if a field is sensitive and should not be logged
func IsSensitiveField(field string) bool {
	lowerField := strings.ToLower(field)
	sensitiveFields := []string{
		"password", "token", "secret", "key", "auth", "cred", "private",
	}

	for _, sensitive := range sensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// SanitizeValue sanitizes a value for logging
func SanitizeValue(field string, value interface{}) string {
	if IsSensitiveField(field) {
		return "[REDACTED]"
	}

	switch v := value.(type) {
	case string:
		if len(v) > 100 {
			return v[:97] + "..."
		}
		return v
	default:
		return fmt.Sprintf("%v", value)
	}
}

// ValidationResult contains the result of a validation operation.
type ValidationResult struct {
	Errors []*ValidationError `json:"errors"`
}

// NewValidationResult creates a new ValidationResult.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Errors: []*ValidationError{},
	}
}

// AddError adds an error to the validation result.
func (vr *ValidationResult) AddError(field, code, message string, value ...interface{}) {
	var valueStr string
	if len(value) > 0 {
		valueStr = SanitizeValue(field, value[0])
	}

	vr.Errors = append(vr.Errors, &ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
		Value:   valueStr,
	})
}

// IsValid returns true if the validation passed.
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// First returns the first error or nil if there are no errors.
func (vr *ValidationResult) First() *ValidationError {
	if len(vr.Errors) == 0 {
		return nil
	}
	return vr.Errors[0]
}

// ErrorMessages returns all error messages.
func (vr *ValidationResult) ErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// Error joins every message so a failed result can be returned as an error
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.ErrorMessages(), "; ")
}

// Err returns nil for a valid result and the result itself otherwise
func (vr *ValidationResult) Err() error {
	if vr.IsValid() {
		return nil
	}
	return vr
}

// ValidateStruct validates a struct using validator tags
func ValidateStruct(s interface{}) *ValidationResult {
	result := NewValidationResult()
	err := validate.Struct(s)
	if err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			result.AddError("validation", "INVALID_STRUCT", "Invalid validation input")
			return result
		}

		for _, err := range err.(validator.ValidationErrors) {
			field := err.Field()
			tag := err.Tag()
			param := err.Param()

			var message string
			switch tag {
			case "required":
				message = fmt.Sprintf("%s is required", field)
			case "min":
				message = fmt.Sprintf("%s must be at least %s", field, param)
			case "max":
				message = fmt.Sprintf("%s must be at most %s characters", field, param)
			case "oneof":
				message = fmt.Sprintf("%s must be one of [%s]", field, param)
			case "relpath":
				message = fmt.Sprintf("%s must stay inside the project", field)
			default:
				message = fmt.Sprintf("%s failed validation: %s=%s", field, tag, param)
			}

			result.AddError(field, strings.ToUpper(tag), message, err.Value())
		}
	}
	return result
}
