package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound = errors.New("connected account not found")
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrQueueFull       = errors.New("sync queue is full")
	ErrQueueClosed     = errors.New("sync queue is closed")

	ErrMalformedNotification = errors.New("malformed mailbox notification")
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindTransient   ErrorKind = "transient"
	KindStaleCursor ErrorKind = "stale_cursor"
	KindNotFound    ErrorKind = "not_found"
	KindAuth        ErrorKind = "auth"
	KindUnknown     ErrorKind = "unknown"
)

// ProviderError wraps a mailbox provider failure with its classification.
type ProviderError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the next notification may succeed from the same
// cursor.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindTransient
}

func kindOf(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

func IsStaleCursor(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindStaleCursor
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}
