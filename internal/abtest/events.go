package abtest

import (
	"context"
	"time"

	"github.com/maintai/abtest/internal/store"
)

// DefaultConversionValue is the value recorded when a caller has none.
const DefaultConversionValue = 1.0

// TrackConversion records a conversion against the actor's variant for
// experimentID. If the actor has no variant (unknown, inactive or
// out-of-range experiment) nothing is recorded and no error is returned.
func (m *Manager) TrackConversion(ctx context.Context, experimentID, conversionType string, value float64) error {
	// Held until the event is appended so a concurrent Reset cannot clear
	// the assignment in between.
	m.mu.Lock()
	defer m.mu.Unlock()

	variantID, ok, err := m.assignLocked(ctx, experimentID)
	if err != nil {
		return err
	}
	if !ok {
		m.metrics.Dropped(experimentID)
		m.logger.Debug("dropping conversion without assignment", "experiment", experimentID, "type", conversionType)
		return nil
	}

	e := store.Event{
		Type:           store.EventConversion,
		ExperimentID:   experimentID,
		VariantID:      variantID,
		ConversionType: conversionType,
		Value:          value,
		Identifier:     m.identifier,
		Timestamp:      timestamp(m.now()),
	}
	if err := m.events.Append(ctx, e); err != nil {
		m.metrics.StorageError("record")
		return err
	}

	m.metrics.Converted(experimentID, variantID, conversionType, value)
	return nil
}

// Must hold m.mu.
func (m *Manager) recordAssignment(ctx context.Context, experimentID, variantID string, now time.Time) error {
	return m.events.Append(ctx, store.Event{
		Type:         store.EventAssignment,
		ExperimentID: experimentID,
		VariantID:    variantID,
		Identifier:   m.identifier,
		Timestamp:    timestamp(now),
	})
}

// Event timestamps are UTC with millisecond precision.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
