package common

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError represents a single field failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Message, e.Value)
}

// Validator collects rule failures for one input.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// ValidationRule inspects one value; nil means the value passed.
type ValidationRule func(fieldName string, value any) *ValidationError

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}
	messages := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Err returns a validation AppError or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError(CodeValidation, v.ErrorMessage(), ErrValidation)
}

// Required rejects nil and blank strings.
func Required(fieldName string, value any) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	return nil
}

// OneOf accepts strings present in allowed (compared lowercase).
func OneOf(allowed map[string]struct{}) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		s, _ := value.(string)
		if _, ok := allowed[strings.ToLower(s)]; !ok {
			keys := make([]string, 0, len(allowed))
			for k := range allowed {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return &ValidationError{Field: fieldName, Value: value, Message: "must be one of " + strings.Join(keys, ", ")}
		}
		return nil
	}
}

// MaxBytes rejects int64 sizes above limit. Non-positive sizes are rejected too.
func MaxBytes(limit int64) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		n, ok := value.(int64)
		if !ok {
			return &ValidationError{Field: fieldName, Value: value, Message: "must be a size in bytes"}
		}
		if n <= 0 {
			return &ValidationError{Field: fieldName, Value: value, Message: "must not be empty"}
		}
		if n > limit {
			return &ValidationError{Field: fieldName, Value: value, Message: fmt.Sprintf("must be at most %d MB", limit/(1024*1024))}
		}
		return nil
	}
}
