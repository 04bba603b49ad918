package abtest_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/experiment"
	"github.com/maintai/abtest/internal/metrics"
	"github.com/maintai/abtest/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentifier = "user_abc123_1700000000000"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testCatalog(t *testing.T) *experiment.Catalog {
	t.Helper()
	c, err := experiment.NewCatalog(
		experiment.Experiment{
			ID:     "dashboardButtonColor",
			Name:   "Dashboard Button Color",
			Active: true,
			Variants: []experiment.Variant{
				{ID: "control", Name: "Blue", Weight: 50, Config: experiment.Config{"buttonColor": "blue"}},
				{ID: "variant_a", Name: "Green", Weight: 50, Config: experiment.Config{"buttonColor": "green"}},
			},
			StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		experiment.Experiment{
			ID:     "dashboardLayout",
			Name:   "Dashboard Layout",
			Active: true,
			Variants: []experiment.Variant{
				{ID: "control", Weight: 50, Config: experiment.Config{"layout": "grid"}},
				{ID: "variant_a", Weight: 50},
			},
		},
		experiment.Experiment{
			ID:     "paused",
			Active: false,
			Variants: []experiment.Variant{
				{ID: "control", Weight: 100},
			},
		},
		experiment.Experiment{
			ID:        "upcoming",
			Active:    true,
			Variants:  []experiment.Variant{{ID: "control", Weight: 100}},
			StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		experiment.Experiment{
			ID:       "finished",
			Active:   true,
			Variants: []experiment.Variant{{ID: "control", Weight: 100}},
			EndDate:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		experiment.Experiment{
			ID:     "empty",
			Active: true,
		},
	)
	require.NoError(t, err)
	return c
}

func newTestManager(t *testing.T, s store.Store, opts ...abtest.Option) *abtest.Manager {
	t.Helper()
	opts = append([]abtest.Option{
		abtest.WithClock(fixedClock),
		abtest.WithIdentifier(testIdentifier),
	}, opts...)
	return abtest.New(testCatalog(t), s, opts...)
}

func eventsOf(t *testing.T, l store.EventLog) []store.Event {
	t.Helper()
	events, err := l.Events(context.Background())
	require.NoError(t, err)
	return events
}

func TestAssignVariant_Deterministic(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore())

	v, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "variant_a", v)

	v, ok, err = m.AssignVariant(ctx, "dashboardLayout")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "control", v)

	// A fresh scope with the same identifier buckets the same way.
	other := newTestManager(t, store.NewMemoryStore())
	v, _, err = other.Variant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	assert.Equal(t, "variant_a", v)
}

func TestAssignVariant_RecordsOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := newTestManager(t, s)

	for i := 0; i < 5; i++ {
		v, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "variant_a", v)
	}

	events := eventsOf(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventAssignment, events[0].Type)
	assert.Equal(t, "dashboardButtonColor", events[0].ExperimentID)
	assert.Equal(t, "variant_a", events[0].VariantID)
	assert.Equal(t, testIdentifier, events[0].Identifier)
	assert.Equal(t, testNow, events[0].Timestamp)
}

func TestAssignVariant_PersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "abtest.db")

	s, err := store.OpenSQLite(dbPath)
	require.NoError(t, err)
	first := abtest.New(testCatalog(t), s, abtest.WithClock(fixedClock))
	id, err := first.Identifier(ctx)
	require.NoError(t, err)
	want, ok, err := first.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	second := abtest.New(testCatalog(t), s, abtest.WithClock(fixedClock))
	gotID, err := second.Identifier(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	got, ok, err := second.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Len(t, eventsOf(t, s), 1)
}

func TestAssignVariant_NotAssignable(t *testing.T) {
	tests := []struct {
		name         string
		experimentID string
	}{
		{"unknown", "nope"},
		{"inactive", "paused"},
		{"before start", "upcoming"},
		{"after end", "finished"},
		{"no variants", "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemoryStore()
			m := newTestManager(t, s)

			v, ok, err := m.AssignVariant(ctx, tt.experimentID)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, v)

			assignments, err := m.Assignments(ctx)
			require.NoError(t, err)
			assert.Empty(t, assignments)
			assert.Empty(t, eventsOf(t, s))
		})
	}
}

func TestAssignVariant_StoredAssignmentOutlivesWindow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	now := testNow
	clock := func() time.Time { return now }

	m := abtest.New(testCatalog(t), s, abtest.WithClock(clock), abtest.WithIdentifier(testIdentifier))
	_, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)

	now = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	v, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "variant_a", v)
}

func TestAssignVariant_EmptyStoredVariantIsAbsent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, store.KeyAssignments, `{"dashboardButtonColor":""}`))

	m := newTestManager(t, s)
	v, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "variant_a", v)
	assert.Len(t, eventsOf(t, s), 1)
}

func TestAssignVariant_CorruptAssignments(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, store.KeyAssignments, "{not json"))

	m := newTestManager(t, s)
	v, ok, err := m.AssignVariant(ctx, "dashboardLayout")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "control", v)

	raw, _, err := s.Get(ctx, store.KeyAssignments)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dashboardLayout":"control"}`, raw)
}

func TestAssignVariant_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := newTestManager(t, s)

	var wg sync.WaitGroup
	results := make([]string, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := m.AssignVariant(ctx, "dashboardButtonColor")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, "variant_a", v)
	}
	assert.Len(t, eventsOf(t, s), 1)
}

func TestIdentifier(t *testing.T) {
	ctx := context.Background()

	t.Run("generated once", func(t *testing.T) {
		s := store.NewMemoryStore()
		calls := 0
		m := abtest.New(testCatalog(t), s, abtest.WithIdentifierGenerator(func(time.Time) string {
			calls++
			return fmt.Sprintf("user_gen%d", calls)
		}))

		id, err := m.Identifier(ctx)
		require.NoError(t, err)
		assert.Equal(t, "user_gen1", id)

		id, err = m.Identifier(ctx)
		require.NoError(t, err)
		assert.Equal(t, "user_gen1", id)
		assert.Equal(t, 1, calls)

		stored, ok, err := s.Get(ctx, store.KeyIdentifier)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "user_gen1", stored)
	})

	t.Run("stored identifier wins", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Set(ctx, store.KeyIdentifier, "user_existing_1"))

		m := abtest.New(testCatalog(t), s, abtest.WithIdentifier(testIdentifier))
		id, err := m.Identifier(ctx)
		require.NoError(t, err)
		assert.Equal(t, "user_existing_1", id)
	})

	t.Run("format", func(t *testing.T) {
		id := abtest.NewIdentifier(time.UnixMilli(1700000000000))
		assert.Regexp(t, `^user_[0-9a-f]{9}_1700000000000$`, id)
		assert.NotEqual(t, id, abtest.NewIdentifier(time.UnixMilli(1700000000000)))
	})
}

func TestVariantConfig(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore())

	cfg, ok, err := m.VariantConfig(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "green", cfg["buttonColor"])

	cfg, ok, err = m.VariantConfig(ctx, "paused")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, cfg)
}

func TestVariantConfig_NoConfig(t *testing.T) {
	ctx := context.Background()
	c := experiment.MustNewCatalog(experiment.Experiment{
		ID:       "bare",
		Active:   true,
		Variants: []experiment.Variant{{ID: "control", Weight: 1}},
	})
	m := abtest.New(c, store.NewMemoryStore(), abtest.WithIdentifier(testIdentifier))

	cfg, ok, err := m.VariantConfig(ctx, "bare")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, cfg)
}

func TestIsInVariant(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore())

	in, err := m.IsInVariant(ctx, "dashboardButtonColor", "variant_a")
	require.NoError(t, err)
	assert.True(t, in)

	in, err = m.IsInVariant(ctx, "dashboardButtonColor", "control")
	require.NoError(t, err)
	assert.False(t, in)

	in, err = m.IsInVariant(ctx, "nope", "control")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := newTestManager(t, s)

	_, _, err := m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.NoError(t, m.TrackConversion(ctx, "dashboardButtonColor", "button_click", 1))

	require.NoError(t, m.Reset(ctx))

	assignments, err := m.Assignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	assert.Empty(t, eventsOf(t, s))

	_, ok, err := s.Get(ctx, store.KeyAssignments)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := m.Identifier(ctx)
	require.NoError(t, err)
	assert.Equal(t, testIdentifier, id)

	// Same identifier, same bucket, new assignment event.
	v, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "variant_a", v)
	assert.Len(t, eventsOf(t, s), 1)
}

func TestSharedEventLog(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemoryStore()

	alice := abtest.New(testCatalog(t), store.WithPrefix(shared, "visitor:alice:"),
		abtest.WithClock(fixedClock), abtest.WithIdentifier("user_alice_1"), abtest.WithEventLog(shared))
	bob := abtest.New(testCatalog(t), store.WithPrefix(shared, "visitor:bob:"),
		abtest.WithClock(fixedClock), abtest.WithIdentifier("user_bob_1"), abtest.WithEventLog(shared))

	_, _, err := alice.AssignVariant(ctx, "dashboardLayout")
	require.NoError(t, err)
	_, _, err = bob.AssignVariant(ctx, "dashboardLayout")
	require.NoError(t, err)

	events := eventsOf(t, shared)
	require.Len(t, events, 2)
	assert.Equal(t, "user_alice_1", events[0].Identifier)
	assert.Equal(t, "user_bob_1", events[1].Identifier)

	id, ok, err := shared.Get(ctx, "visitor:alice:"+store.KeyIdentifier)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user_alice_1", id)
}

// brokenStore fails every operation the way an unreachable backend would.
type brokenStore struct{}

var errBroken = errors.New("disk on fire")

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: get: %w", store.ErrUnavailable, errBroken)
}

func (brokenStore) Set(context.Context, string, string) error {
	return fmt.Errorf("%w: set: %w", store.ErrUnavailable, errBroken)
}

func (brokenStore) Remove(context.Context, string) error {
	return fmt.Errorf("%w: remove: %w", store.ErrUnavailable, errBroken)
}

func (brokenStore) Close() error { return nil }

func TestStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	m := newTestManager(t, brokenStore{}, abtest.WithMetrics(rec))

	_, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, err, errBroken)
	assert.False(t, ok)

	_, err = m.Identifier(ctx)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	err = m.TrackConversion(ctx, "dashboardButtonColor", "button_click", 1)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	_, err = m.Analytics(ctx)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	err = m.Reset(ctx)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.StorageErrors.WithLabelValues("analytics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.StorageErrors.WithLabelValues("reset")))
}

// flakyLog fails the next failures appends, then delegates.
type flakyLog struct {
	store.EventLog

	mu       sync.Mutex
	failures int
}

func (l *flakyLog) Append(ctx context.Context, e store.Event) error {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return fmt.Errorf("%w: append: %w", store.ErrUnavailable, errBroken)
	}
	l.mu.Unlock()
	return l.EventLog.Append(ctx, e)
}

func TestAssignVariant_EventFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	s := store.NewMemoryStore()
	log := &flakyLog{EventLog: s, failures: 1}
	m := newTestManager(t, s, abtest.WithEventLog(log), abtest.WithMetrics(rec))

	v, ok, err := m.AssignVariant(ctx, "dashboardButtonColor")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.False(t, ok)
	assert.Empty(t, v)

	assignments, err := m.Assignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, assignments)

	raw, _, err := s.Get(ctx, store.KeyAssignments)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, raw)
	assert.Empty(t, eventsOf(t, s))

	// The retry assigns again and this time the event is recorded.
	v, ok, err = m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "variant_a", v)

	events := eventsOf(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventAssignment, events[0].Type)

	a, err := m.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, a["dashboardButtonColor"].Assignments["variant_a"])
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.StorageErrors.WithLabelValues("record")))
}

func TestTrackConversion_ConcurrentReset(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := newTestManager(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.TrackConversion(ctx, "dashboardLayout", "button_click", 1))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Reset(ctx))
		}()
	}
	wg.Wait()

	// Every surviving conversion follows the assignment it was counted for.
	assigned := make(map[string]bool)
	for _, e := range eventsOf(t, s) {
		switch e.Type {
		case store.EventAssignment:
			assigned[e.VariantID] = true
		case store.EventConversion:
			assert.True(t, assigned[e.VariantID], "conversion for %s without an assignment event", e.VariantID)
		}
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	m := newTestManager(t, store.NewMemoryStore(), abtest.WithMetrics(rec))

	_, _, err := m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	_, _, err = m.AssignVariant(ctx, "dashboardButtonColor")
	require.NoError(t, err)
	require.NoError(t, m.TrackConversion(ctx, "dashboardButtonColor", "signup", 2.5))
	require.NoError(t, m.TrackConversion(ctx, "paused", "signup", 1))
	require.NoError(t, m.Reset(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Assignments.WithLabelValues("dashboardButtonColor", "variant_a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Conversions.WithLabelValues("dashboardButtonColor", "variant_a", "signup")))
	assert.Equal(t, 2.5, testutil.ToFloat64(rec.ConversionValue.WithLabelValues("dashboardButtonColor", "variant_a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.DroppedConversions.WithLabelValues("paused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Resets))
}
