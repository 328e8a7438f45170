// Package errors defines the sentinel errors shared by the indexing and
// search packages, typed errors that carry extra context, and the mapping
// from errors to HTTP status codes used by the search handler.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDecoding         = errors.New("malformed input text")
	ErrIndexNotReady    = errors.New("index not ready")
	ErrAlreadyFinalized = errors.New("index already finalized")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrCorruptIndex     = errors.New("corrupt index file")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

// DecodingError reports invalid UTF-8 in a field's raw text. Offset is the
// byte offset of the first invalid sequence.
type DecodingError struct {
	Field  string
	Offset int
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("%s: field %q: invalid utf-8 at byte %d", ErrDecoding.Error(), e.Field, e.Offset)
}

func (e *DecodingError) Unwrap() error {
	return ErrDecoding
}

// InvalidQueryError reports query syntax the parser does not support.
// Pos is the byte offset in Query where the problem was detected.
type InvalidQueryError struct {
	Query  string
	Pos    int
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d in %q", ErrInvalidQuery.Error(), e.Reason, e.Pos, e.Query)
}

func (e *InvalidQueryError) Unwrap() error {
	return ErrInvalidQuery
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDecoding):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotReady), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrAlreadyFinalized):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
