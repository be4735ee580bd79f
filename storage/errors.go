package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrUnavailable   = errors.New("storage: unavailable")
	ErrTimeout       = errors.New("storage: timeout")
	ErrCorrupt       = errors.New("storage: corrupt entry")
	ErrInvalidCommit = errors.New("storage: invalid commit token")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransient reports failures the caller may retry later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// FromContext maps a context error onto the storage taxonomy.
// It returns nil when err is not a context error.
func FromContext(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrUnavailable
	}
	return nil
}
