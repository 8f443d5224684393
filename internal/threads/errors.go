package threads

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is matched by every *AuthorizationError via errors.Is.
var ErrUnauthorized = errors.New("conversation is not allowed")

// AuthorizationError is returned when a conversation is not on the allow-list.
// No storage access or remote call happens before it is returned.
type AuthorizationError struct {
	ConversationID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("conversation %q is not allowed to use this bot", e.ConversationID)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrUnauthorized
}

// StorageError wraps any failure of the backing database.
type StorageError struct {
	// Op names the store operation that failed, e.g. "lookup" or "insert".
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("thread store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
