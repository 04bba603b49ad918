// Package metrics exposes experiment activity as prometheus counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "abtest"

// Recorder holds the counters. A nil *Recorder is valid and records nothing.
type Recorder struct {
	Assignments        *prometheus.CounterVec
	Conversions        *prometheus.CounterVec
	ConversionValue    *prometheus.CounterVec
	DroppedConversions *prometheus.CounterVec
	Resets             prometheus.Counter
	StorageErrors      *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "assignments_total", Help: "New variant assignments."},
			[]string{"experiment", "variant"},
		),
		Conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "conversions_total", Help: "Recorded conversions."},
			[]string{"experiment", "variant", "type"},
		),
		ConversionValue: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "conversion_value_total", Help: "Sum of non-negative conversion values."},
			[]string{"experiment", "variant"},
		),
		DroppedConversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "dropped_conversions_total", Help: "Conversions ignored because no variant was assigned."},
			[]string{"experiment"},
		),
		Resets: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "resets_total", Help: "Assignment and event log resets."},
		),
		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "storage_errors_total", Help: "Storage failures by operation."},
			[]string{"op"},
		),
	}

	reg.MustRegister(r.Assignments, r.Conversions, r.ConversionValue, r.DroppedConversions, r.Resets, r.StorageErrors)
	return r
}

func (r *Recorder) Assigned(experiment, variant string) {
	if r == nil {
		return
	}
	r.Assignments.WithLabelValues(experiment, variant).Inc()
}

func (r *Recorder) Converted(experiment, variant, conversionType string, value float64) {
	if r == nil {
		return
	}
	r.Conversions.WithLabelValues(experiment, variant, conversionType).Inc()
	// Counters can't go down.
	if value > 0 {
		r.ConversionValue.WithLabelValues(experiment, variant).Add(value)
	}
}

func (r *Recorder) Dropped(experiment string) {
	if r == nil {
		return
	}
	r.DroppedConversions.WithLabelValues(experiment).Inc()
}

func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.Resets.Inc()
}

func (r *Recorder) StorageError(op string) {
	if r == nil {
		return
	}
	r.StorageErrors.WithLabelValues(op).Inc()
}
