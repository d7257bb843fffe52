// Package errors defines the error taxonomy shared by the build and query
// paths: sentinel errors for configuration, corpus, and partition failures,
// plus an AppError wrapper that carries an HTTP status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrEmptyCorpus      = errors.New("corpus is empty")
	ErrPartitionFailed  = errors.New("partition failed after retries")
	ErrArtifactCorrupt  = errors.New("index artifact is corrupt")
	ErrIndexUnavailable = errors.New("no index loaded")
	ErrBuildNotFound    = errors.New("build not found")
	ErrTimeout          = errors.New("operation timed out")
)

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
	case errors.Is(err, ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrBuildNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexUnavailable), errors.Is(err, ErrPartitionFailed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
