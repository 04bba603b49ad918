package store

import "time"

// Well-known keys, shared with browser clients.
const (
	KeyIdentifier  = "ab_test_user_id"
	KeyAssignments = "ab_test_assignments"
	KeyEvents      = "ab_test_events"
)

type EventType string

const (
	EventAssignment EventType = "ab_test_assignment"
	EventConversion EventType = "ab_test_conversion"
)

// Event is one entry of the event log. ConversionType and Value are only
// meaningful for conversions and are left out of assignment events.
type Event struct {
	Type           EventType `json:"type"`
	ExperimentID   string    `json:"testId"`
	VariantID      string    `json:"variantId"`
	ConversionType string    `json:"conversionType,omitempty"`
	Value          float64   `json:"value,omitempty"`
	Identifier     string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
}
