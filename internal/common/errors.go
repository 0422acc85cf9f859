package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors. Every AppError wraps one of these so callers
// classify with errors.Is.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrExtraction       = errors.New("extraction failed")
	ErrAnalyzer         = errors.New("analyzer failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrValidation       = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrInternal         = errors.New("internal error")
)

// Error codes carried on AppError.Code.
const (
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeExtraction       = "EXTRACTION_FAILURE"
	CodeAnalyzer         = "ANALYZER_FAILURE"
	CodePersistence      = "PERSISTENCE_FAILURE"
	CodeValidation       = "VALIDATION_FAILURE"
	CodeConflict         = "CONFLICT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeConfig           = "CONFIG_ERROR"
	CodeInternal         = "INTERNAL"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NotFoundf(format string, args ...any) error {
	return NewAppError(CodeNotFound, fmt.Sprintf(format, args...), ErrNotFound)
}

func PermissionDeniedf(format string, args ...any) error {
	return NewAppError(CodePermissionDenied, fmt.Sprintf(format, args...), ErrPermissionDenied)
}

func Validationf(format string, args ...any) error {
	return NewAppError(CodeValidation, fmt.Sprintf(format, args...), ErrValidation)
}

func Unauthorizedf(format string, args ...any) error {
	return NewAppError(CodeUnauthorized, fmt.Sprintf(format, args...), ErrUnauthorized)
}

func Conflictf(format string, args ...any) error {
	return NewAppError(CodeConflict, fmt.Sprintf(format, args...), ErrConflict)
}

// ExtractionError wraps cause so that both ErrExtraction and cause match errors.Is.
func ExtractionError(message string, cause error) error {
	return NewAppError(CodeExtraction, message, errors.Join(ErrExtraction, cause))
}

func AnalyzerError(message string, cause error) error {
	return NewAppError(CodeAnalyzer, message, errors.Join(ErrAnalyzer, cause))
}

func PersistenceError(message string, cause error) error {
	if cause == nil {
		cause = ErrPersistence
	} else if !errors.Is(cause, ErrPersistence) {
		cause = errors.Join(ErrPersistence, cause)
	}
	return NewAppError(CodePersistence, message, cause)
}

// HTTPStatus maps an error to the status code used by the HTTP API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps an error to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrPermissionDenied):
		return codes.PermissionDenied
	case errors.Is(err, ErrUnauthorized):
		return codes.Unauthenticated
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, ErrConflict):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// GRPCError converts err into a gRPC status error.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(GRPCCode(err), err.Error())
}

// PublicMessage returns the message safe to show to API clients.
func PublicMessage(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && HTTPStatus(err) < http.StatusInternalServerError {
		return ae.Message
	}
	if HTTPStatus(err) >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
