package abtest

import (
	"context"
	"sort"
	"time"

	"github.com/maintai/abtest/internal/store"
)

// Conversion is one recorded conversion as seen by analytics.
type Conversion struct {
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates one experiment's events.
type Summary struct {
	Assignments map[string]int          `json:"assignments"`
	Conversions map[string][]Conversion `json:"conversions"`
}

// Analytics maps experiment ids to their summaries. Experiments without
// events are absent.
type Analytics map[string]*Summary

func newSummary() *Summary {
	return &Summary{
		Assignments: make(map[string]int),
		Conversions: make(map[string][]Conversion),
	}
}

// ConversionCount returns the number of conversions for variantID.
func (s *Summary) ConversionCount(variantID string) int {
	return len(s.Conversions[variantID])
}

// ConversionRate is conversions per assignment, or 0 without assignments.
func (s *Summary) ConversionRate(variantID string) float64 {
	assignments := s.Assignments[variantID]
	if assignments == 0 {
		return 0
	}
	return float64(s.ConversionCount(variantID)) / float64(assignments)
}

// RecentConversions returns up to the last n conversions for variantID,
// oldest first.
func (s *Summary) RecentConversions(variantID string, n int) []Conversion {
	all := s.Conversions[variantID]
	if n <= 0 {
		return nil
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]Conversion, len(all))
	copy(out, all)
	return out
}

// Variants returns every variant id seen in the summary, sorted.
func (s *Summary) Variants() []string {
	seen := make(map[string]bool)
	for v := range s.Assignments {
		seen[v] = true
	}
	for v := range s.Conversions {
		seen[v] = true
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Summarize reduces an event log. Conversions keep log order.
func Summarize(events []store.Event) Analytics {
	out := make(Analytics)
	for _, e := range events {
		s, ok := out[e.ExperimentID]
		if !ok {
			s = newSummary()
			out[e.ExperimentID] = s
		}

		switch e.Type {
		case store.EventAssignment:
			s.Assignments[e.VariantID]++
		case store.EventConversion:
			s.Conversions[e.VariantID] = append(s.Conversions[e.VariantID], Conversion{
				Type:      e.ConversionType,
				Value:     e.Value,
				Timestamp: e.Timestamp,
			})
		}
	}
	return out
}

// Analytics summarizes the whole event log. It is recomputed on every call.
func (m *Manager) Analytics(ctx context.Context) (Analytics, error) {
	events, err := m.events.Events(ctx)
	if err != nil {
		m.metrics.StorageError("analytics")
		return nil, err
	}
	return Summarize(events), nil
}

// Events returns the raw event log.
func (m *Manager) Events(ctx context.Context) ([]store.Event, error) {
	return m.events.Events(ctx)
}
