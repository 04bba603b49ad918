package abtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maintai/abtest/internal/store"
)

// NewIdentifier builds an identifier from a random component and the
// creation time in milliseconds, e.g. user_3f9a1c07b_1735689600000.
func NewIdentifier(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("user_%s_%d", random, now.UnixMilli())
}

// Identifier returns the actor's identifier, creating and persisting one on
// first use.
func (m *Manager) Identifier(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.load(ctx); err != nil {
		m.metrics.StorageError("identify")
		return "", err
	}
	return m.identifier, nil
}

// Must hold m.mu.
func (m *Manager) resolveIdentifier(ctx context.Context) (string, error) {
	id, ok, err := m.store.Get(ctx, store.KeyIdentifier)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = m.fixedID
	if id == "" {
		id = m.newID(m.now())
	}
	if err := m.store.Set(ctx, store.KeyIdentifier, id); err != nil {
		return "", err
	}

	m.logger.Debug("created identifier", "identifier", id)
	return id, nil
}
