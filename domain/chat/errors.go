package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by every layer of the chat.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
)

// Wire codes used when errors cross the request-reply boundary.
const (
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeValidation   = "validation_error"
	CodeConflict     = "conflict"
	CodeInternal     = "internal_error"
)

// Validation wraps ErrValidation with a reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Code returns the wire code for err, or "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// FromCode rebuilds an error from a wire code and message so that
// errors.Is keeps working on the calling side.
func FromCode(code, message string) error {
	var sentinel error
	switch code {
	case "":
		return nil
	case CodeUnauthorized:
		sentinel = ErrUnauthorized
	case CodeNotFound:
		sentinel = ErrNotFound
	case CodeValidation:
		sentinel = ErrValidation
	case CodeConflict:
		sentinel = ErrConflict
	default:
		return errors.New(message)
	}
	message = strings.TrimPrefix(message, sentinel.Error()+": ")
	return fmt.Errorf("%w: %s", sentinel, message)
}
