// Package abtest assigns an anonymous actor to experiment variants, records
// assignment and conversion events, and summarizes them.
//
// A Manager serves one storage scope, the equivalent of one browser's
// localStorage: one identifier, one assignment record, one event log.
// Assignments are computed once per experiment and then read back from
// storage, so an actor keeps its variant across restarts until Reset.
package abtest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maintai/abtest/internal/bucket"
	"github.com/maintai/abtest/internal/experiment"
	"github.com/maintai/abtest/internal/metrics"
	"github.com/maintai/abtest/internal/store"
)

// Manager is safe for concurrent use. Identity and assignment work is
// serialized so that each experiment is assigned at most once.
type Manager struct {
	catalog *experiment.Catalog
	store   store.Store
	events  store.EventLog
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
	newID   func(time.Time) string
	fixedID string

	mu          sync.Mutex
	identifier  string
	assignments map[string]string
	loaded      bool
}

type Option func(*Manager)

// WithClock replaces time.Now. Used for date-range checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEventLog replaces the store's own event log, for example to share one
// log between several scoped managers.
func WithEventLog(l store.EventLog) Option {
	return func(m *Manager) { m.events = l }
}

// WithIdentifier makes the manager adopt id the first time it needs an
// identifier. An identifier that is already persisted wins.
func WithIdentifier(id string) Option {
	return func(m *Manager) { m.fixedID = id }
}

// WithIdentifierGenerator replaces the random identifier generator.
func WithIdentifierGenerator(gen func(time.Time) string) Option {
	return func(m *Manager) { m.newID = gen }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a manager over catalog and s. Nothing is read from s until
// the first call that needs it.
func New(catalog *experiment.Catalog, s store.Store, opts ...Option) *Manager {
	m := &Manager{
		catalog: catalog,
		store:   s,
		now:     time.Now,
		newID:   NewIdentifier,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.events == nil {
		m.events = store.LogFor(s)
	}
	return m
}

// Catalog returns the experiments the manager assigns from.
func (m *Manager) Catalog() *experiment.Catalog {
	return m.catalog
}

// AssignVariant returns the variant for experimentID, computing and
// persisting it on first use. ok is false when the experiment is unknown,
// inactive, outside its date range or has no variants; that is a normal
// outcome, not an error. Errors only come from storage.
func (m *Manager) AssignVariant(ctx context.Context, experimentID string) (variantID string, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.assignLocked(ctx, experimentID)
}

// assignLocked is AssignVariant without the locking. Must hold m.mu.
func (m *Manager) assignLocked(ctx context.Context, experimentID string) (string, bool, error) {
	if err := m.load(ctx); err != nil {
		m.metrics.StorageError("load")
		return "", false, err
	}

	if v := m.assignments[experimentID]; v != "" {
		return v, true, nil
	}

	e, found := m.catalog.Get(experimentID)
	if !found || !e.Active {
		return "", false, nil
	}

	now := m.now()
	if !e.InWindow(now) {
		return "", false, nil
	}

	v, found := bucket.Assign(m.identifier, e)
	if !found {
		return "", false, nil
	}

	m.assignments[experimentID] = v.ID
	if err := m.saveAssignments(ctx); err != nil {
		delete(m.assignments, experimentID)
		m.metrics.StorageError("assign")
		return "", false, err
	}

	// Every kept assignment has its event; undo it so the next call retries.
	if err := m.recordAssignment(ctx, experimentID, v.ID, now); err != nil {
		delete(m.assignments, experimentID)
		if rbErr := m.saveAssignments(ctx); rbErr != nil {
			m.logger.Warn("failed to roll back assignment", "experiment", experimentID, "error", rbErr)
		}
		m.metrics.StorageError("record")
		return "", false, err
	}

	m.metrics.Assigned(experimentID, v.ID)
	m.logger.Debug("assigned variant", "experiment", experimentID, "variant", v.ID, "identifier", m.identifier)
	return v.ID, true, nil
}

// Variant is AssignVariant under the name display code uses.
func (m *Manager) Variant(ctx context.Context, experimentID string) (string, bool, error) {
	return m.AssignVariant(ctx, experimentID)
}

// VariantConfig returns the presentation config of the assigned variant.
func (m *Manager) VariantConfig(ctx context.Context, experimentID string) (experiment.Config, bool, error) {
	variantID, ok, err := m.AssignVariant(ctx, experimentID)
	if err != nil || !ok {
		return nil, false, err
	}

	e, found := m.catalog.Get(experimentID)
	if !found {
		return nil, false, nil
	}
	v, found := e.Variant(variantID)
	if !found || v.Config == nil {
		return nil, false, nil
	}
	return v.Config, true, nil
}

// IsInVariant reports whether the actor is assigned to variantID.
func (m *Manager) IsInVariant(ctx context.Context, experimentID, variantID string) (bool, error) {
	assigned, ok, err := m.AssignVariant(ctx, experimentID)
	if err != nil {
		return false, err
	}
	return ok && assigned == variantID, nil
}

// Assignments returns a copy of the persisted experiment → variant record.
func (m *Manager) Assignments(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.load(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m.assignments))
	for k, v := range m.assignments {
		out[k] = v
	}
	return out, nil
}

// Reset forgets every assignment and clears the event log. The identifier
// is kept, so the same experiments bucket the same way afterwards unless the
// catalog changed.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.assignments = make(map[string]string)
	if err := m.store.Remove(ctx, store.KeyAssignments); err != nil {
		m.metrics.StorageError("reset")
		return err
	}
	if err := m.events.Clear(ctx); err != nil {
		m.metrics.StorageError("reset")
		return err
	}

	m.metrics.Reset()
	m.logger.Info("reset experiment assignments and events")
	return nil
}

// load reads the identifier and assignment record once. Must hold m.mu.
func (m *Manager) load(ctx context.Context) error {
	if m.loaded {
		return nil
	}

	id, err := m.resolveIdentifier(ctx)
	if err != nil {
		return err
	}

	assignments, err := m.loadAssignments(ctx)
	if err != nil {
		return err
	}

	m.identifier = id
	m.assignments = assignments
	m.loaded = true
	return nil
}

func (m *Manager) loadAssignments(ctx context.Context) (map[string]string, error) {
	raw, ok, err := m.store.Get(ctx, store.KeyAssignments)
	if err != nil {
		return nil, err
	}

	assignments := make(map[string]string)
	if !ok || raw == "" {
		return assignments, nil
	}
	if err := json.Unmarshal([]byte(raw), &assignments); err != nil {
		m.logger.Warn("discarding corrupt assignment record", "key", store.KeyAssignments, "error", err)
		return make(map[string]string), nil
	}
	return assignments, nil
}

func (m *Manager) saveAssignments(ctx context.Context) error {
	data, err := json.Marshal(m.assignments)
	if err != nil {
		return fmt.Errorf("failed to marshal assignments: %w", err)
	}
	return m.store.Set(ctx, store.KeyAssignments, string(data))
}
