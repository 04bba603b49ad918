package experiment

import "time"

// Config is consumer-defined presentation data attached to a variant.
// The engine never looks inside it.
type Config map[string]any

// Variant is one treatment arm of an experiment.
type Variant struct {
	ID     string
	Name   string
	Weight float64
	Config Config
}

// Experiment is a named A/B test with its variants and active window.
// Variants keep their declaration order; bucketing depends on it.
type Experiment struct {
	ID          string
	Name        string
	Description string
	Variants    []Variant
	Active      bool
	StartDate   time.Time // zero means no lower bound
	EndDate     time.Time // zero means no upper bound
}

// Variant returns the variant with the given id.
func (e Experiment) Variant(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// TotalWeight sums the weights of all variants.
func (e Experiment) TotalWeight() float64 {
	total := 0.0
	for _, v := range e.Variants {
		total += v.Weight
	}
	return total
}

// InWindow reports whether t falls inside [StartDate, EndDate].
func (e Experiment) InWindow(t time.Time) bool {
	if !e.StartDate.IsZero() && t.Before(e.StartDate) {
		return false
	}
	if !e.EndDate.IsZero() && t.After(e.EndDate) {
		return false
	}
	return true
}

// State describes whether an experiment hands out new assignments.
type State string

const (
	StateRunning   State = "running"
	StateInactive  State = "inactive"
	StateScheduled State = "scheduled"
	StateEnded     State = "ended"
)

// State reports the experiment's state at t.
func (e Experiment) State(t time.Time) State {
	switch {
	case !e.Active:
		return StateInactive
	case !e.StartDate.IsZero() && t.Before(e.StartDate):
		return StateScheduled
	case !e.EndDate.IsZero() && t.After(e.EndDate):
		return StateEnded
	}
	return StateRunning
}
