package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/maintai/abtest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKV runs the behaviour every Store must share.
func testKV(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, store.KeyIdentifier, "user_abc123_1700000000000"))
	v, ok, err := s.Get(ctx, store.KeyIdentifier)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user_abc123_1700000000000", v)

	require.NoError(t, s.Set(ctx, store.KeyIdentifier, "overwritten"))
	v, _, err = s.Get(ctx, store.KeyIdentifier)
	require.NoError(t, err)
	assert.Equal(t, "overwritten", v)

	require.NoError(t, s.Remove(ctx, store.KeyIdentifier))
	_, ok, err = s.Get(ctx, store.KeyIdentifier)
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a missing key is not an error.
	require.NoError(t, s.Remove(ctx, "missing"))
}

func sampleEvents() []store.Event {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []store.Event{
		{Type: store.EventAssignment, ExperimentID: "dashboardButtonColor", VariantID: "control", Identifier: "u1", Timestamp: base},
		{Type: store.EventConversion, ExperimentID: "dashboardButtonColor", VariantID: "control", ConversionType: "button_click", Value: 1, Identifier: "u1", Timestamp: base.Add(time.Second)},
		{Type: store.EventConversion, ExperimentID: "dashboardButtonColor", VariantID: "control", ConversionType: "purchase", Value: 19.99, Identifier: "u1", Timestamp: base.Add(2 * time.Second)},
	}
}

// testLog runs the behaviour every EventLog must share.
func testLog(t *testing.T, l store.EventLog) {
	t.Helper()
	ctx := context.Background()

	events, err := l.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	want := sampleEvents()
	for _, e := range want {
		require.NoError(t, l.Append(ctx, e))
	}

	got, err := l.Events(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.Equal(t, want[i].ExperimentID, got[i].ExperimentID)
		assert.Equal(t, want[i].VariantID, got[i].VariantID)
		assert.Equal(t, want[i].ConversionType, got[i].ConversionType)
		assert.Equal(t, want[i].Value, got[i].Value)
		assert.Equal(t, want[i].Identifier, got[i].Identifier)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d: %v != %v", i, want[i].Timestamp, got[i].Timestamp)
	}

	require.NoError(t, l.Clear(ctx))
	got, err = l.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// testConcurrentAppends checks that parallel writers lose nothing.
func testConcurrentAppends(t *testing.T, l store.EventLog) {
	t.Helper()
	ctx := context.Background()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = l.Append(ctx, store.Event{
					Type:         store.EventAssignment,
					ExperimentID: fmt.Sprintf("exp-%d", w),
					VariantID:    "control",
					Identifier:   fmt.Sprintf("u-%d-%d", w, i),
					Timestamp:    time.Now().UTC(),
				})
			}
		}(w)
	}
	wg.Wait()

	events, err := l.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, writers*perWriter)
}
