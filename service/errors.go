package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthenticated")
	ErrForbidden    = errors.New("this action is unauthorized")

	ErrEventNotFound = fmt.Errorf("event %w", ErrNotFound)

	ErrAlreadyCancelled   = errors.New("this event is already canceled")
	ErrNotSubscribed      = errors.New("you are not subscribed to this event")
	ErrEventInactive      = errors.New("this event is not active")
	ErrOrganizerHasEvents = errors.New("organizers who own events cannot delete their account")
)

// ValidationError maps input field names to human readable messages.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
