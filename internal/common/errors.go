package common

import (
	"errors"
	"fmt"
)

// Error codes for the parse/import taxonomy. Stable strings: they end up
// in uploaded_files.failure_reason and in API responses.
const (
	CodeUnsupportedMimeType = "UNSUPPORTED_MIME_TYPE"
	CodeAlreadyProcessing   = "ALREADY_PROCESSING"
	CodeEmptyDocument       = "EMPTY_DOCUMENT"
	CodeInvalidModelOutput  = "INVALID_MODEL_OUTPUT"
	CodeSummaryNotAvailable = "SUMMARY_NOT_AVAILABLE"
	CodeUnknownItemID       = "UNKNOWN_ITEM_ID"
	CodeInvalidState        = "INVALID_STATE"
	CodeQueueFull           = "QUEUE_FULL"
	CodeNotFound            = "NOT_FOUND"
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

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewAppErrorf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the AppError code carried by err, or "" when err is not
// an AppError.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
