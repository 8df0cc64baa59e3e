package chat

import (
	"errors"
	"fmt"
)

// Validation errors, rejected before any network call.
var (
	ErrEmptyContent     = errors.New("chat: message content is empty")
	ErrContentTooLong   = errors.New("chat: message content exceeds limit")
	ErrNotAuthenticated = errors.New("chat: no authenticated user bound")
)

// TransportError wraps a failed store call. For the asynchronous paths it is
// carried in the corresponding failure event on the bus rather than returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chat: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
