package store

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every read or write failure of a backend.
var ErrUnavailable = errors.New("storage unavailable")

// Store is the key-value persistence an experiment manager runs on.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error

	Close() error
}

// EventLog is an append-only list of events. Each appended event is either
// fully visible to Events or not visible at all.
type EventLog interface {
	Append(ctx context.Context, e Event) error
	// Events returns every event in insertion order.
	Events(ctx context.Context) ([]Event, error)
	Clear(ctx context.Context) error
}

// LogFor returns the backend's native event log if it has one, and a
// key-value backed log otherwise.
func LogFor(s Store) EventLog {
	if l, ok := s.(EventLog); ok {
		return l
	}
	return NewKVLog(s, nil)
}
