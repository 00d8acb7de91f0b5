package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the chat flow. Every failure returned by the room,
// message log and live feed layers matches exactly one of them via errors.Is.
var (
	// ErrBackendUnavailable means the store could not be reached. Retrying is up to the caller.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrRoomNotFound means no room exists for the identifier.
	ErrRoomNotFound = errors.New("room not found")
	// ErrValidation means the input was rejected before any backend call.
	ErrValidation = errors.New("validation failed")
	// ErrWriteRejected means the store refused an insert.
	ErrWriteRejected = errors.New("write rejected")
	// ErrChannelDown means a live subscription failed to open or dropped.
	ErrChannelDown = errors.New("live channel down")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsClassified reports whether err already carries one of the sentinels above.
func IsClassified(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrWriteRejected) ||
		errors.Is(err, ErrChannelDown)
}

// Classify returns err unchanged when it is already part of the taxonomy or a
// context error, and otherwise wraps it as ErrBackendUnavailable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

// Code returns a stable snake_case identifier for err, used in API responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrWriteRejected):
		return "write_rejected"
	case errors.Is(err, ErrChannelDown):
		return "channel_down"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}
