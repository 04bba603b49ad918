package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// KVLog keeps the event log as a JSON array under KeyEvents, the layout
// browser clients use in localStorage. Appends are read-modify-write under a
// mutex, so a single KVLog must be shared by everything writing to the key.
type KVLog struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
}

func NewKVLog(s Store, logger *slog.Logger) *KVLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &KVLog{store: s, logger: logger}
}

func (l *KVLog) Append(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.load(ctx)
	if err != nil {
		return err
	}
	events = append(events, e)

	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	return l.store.Set(ctx, KeyEvents, string(data))
}

func (l *KVLog) Events(ctx context.Context) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.load(ctx)
}

func (l *KVLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.Remove(ctx, KeyEvents)
}

// load reads the stored array. A corrupt value is treated as an empty log.
func (l *KVLog) load(ctx context.Context) ([]Event, error) {
	raw, ok, err := l.store.Get(ctx, KeyEvents)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var events []Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		l.logger.Warn("discarding corrupt event log", "key", KeyEvents, "error", err)
		return nil, nil
	}
	return events, nil
}
