package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("resource conflict")
	ErrInternal   = errors.New("internal server error")
	ErrValidation = errors.New("validation error")

	// Stock-in engine taxonomy
	ErrGenerationExhausted = errors.New("identifier generation exhausted")
	ErrRemoteProcessing    = errors.New("remote processing failure")
	ErrLocalCommit         = errors.New("local commit failure")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInvalidStage        = errors.New("invalid session stage")
)

// AppError represents an application error with context
type AppError struct {
	// Err is the sentinel used for errors.Is matching
	Err error `json:"-"`
	// Cause is the underlying error, if any
	Cause      error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As
func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Cause:      err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// ValidationField is a Validation error about a single field
func ValidationField(field, reason string) *AppError {
	return Validation(map[string]string{field: reason})
}

// GenerationExhausted reports that no unique identifier could be issued within the retry budget
func GenerationExhausted(attempts int, last string) *AppError {
	return &AppError{
		Err:        ErrGenerationExhausted,
		Code:       "GENERATION_EXHAUSTED",
		Message:    fmt.Sprintf("could not issue a unique barcode after %d attempts", attempts),
		StatusCode: http.StatusServiceUnavailable,
		Details:    map[string]string{"last_candidate": last},
	}
}

// RemoteProcessingFailure reports a failed or ambiguous call to the atomic commit endpoint
func RemoteProcessingFailure(message string, cause error) *AppError {
	return &AppError{
		Err:        ErrRemoteProcessing,
		Cause:      cause,
		Code:       "REMOTE_PROCESSING_FAILURE",
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

// LocalCommitFailure reports a durable-write error during the sequential commit
func LocalCommitFailure(message string, cause error) *AppError {
	return &AppError{
		Err:        ErrLocalCommit,
		Cause:      cause,
		Code:       "LOCAL_COMMIT_FAILURE",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// ConcurrencyConflict reports that another execution already owns the stock-in request
func ConcurrencyConflict(message string) *AppError {
	return &AppError{
		Err:        ErrConcurrencyConflict,
		Code:       "CONCURRENCY_CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// InvalidStage reports an operation that the draft session's current stage does not allow
func InvalidStage(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidStage,
		Code:       "INVALID_STAGE",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code returns the AppError code of err, or "" if err is not an AppError
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
