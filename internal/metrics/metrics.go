// Package metrics exposes Prometheus collectors for edit sessions.
//
// Collectors are registered on the default registry at package init, so any
// binary that serves Handler() reports them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess    = "success"
	ResultError      = "error"
	ResultNoImage    = "no_image_data"
	ResultMissing    = "missing_input"
	ResultDiscarded  = "discarded"
	ResultSuperseded = "superseded"
)

var (
	ingestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_ingests_total",
			Help: "Total number of image uploads by outcome",
		},
		[]string{"result"},
	)

	editRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_edit_requests_total",
			Help: "Total number of remote edit requests by trigger and outcome",
		},
		[]string{"trigger", "result"},
	)

	editDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "editor_edit_duration_seconds",
			Help:    "Remote edit call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"result"},
	)

	editsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "editor_edits_in_flight",
			Help: "Number of remote edit calls awaiting settlement",
		},
	)

	intensityCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "editor_intensity_coalesced_total",
			Help: "Intensity changes replaced by a later change inside the debounce window",
		},
	)

	selectionsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "editor_selections_dropped_total",
			Help: "Preset clicks ignored because a request was loading",
		},
	)

	confirmationsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "editor_confirmations_expired_total",
			Help: "Applied-preset confirmations cleared by their timer",
		},
	)

	keyValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_api_key_validations_total",
			Help: "API key validation attempts by outcome",
		},
		[]string{"result"},
	)

	keyValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "editor_api_key_validation_duration_seconds",
			Help:    "API key validation call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "editor_active_sessions",
			Help: "Number of live edit sessions",
		},
	)
)

// RecordIngest records an upload outcome.
func RecordIngest(result string) {
	ingestsTotal.WithLabelValues(result).Inc()
}

// RecordEditIssued records a remote call leaving the controller.
func RecordEditIssued() {
	editsInFlight.Inc()
}

// RecordEditSettled records a remote call settling.
func RecordEditSettled(trigger, result string, duration time.Duration) {
	editsInFlight.Dec()
	editRequestsTotal.WithLabelValues(trigger, result).Inc()
	editDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordEditRejected records an edit that never reached the remote call.
func RecordEditRejected(trigger, result string) {
	editRequestsTotal.WithLabelValues(trigger, result).Inc()
}

// RecordIntensityCoalesced records a debounced change replaced by a newer one.
func RecordIntensityCoalesced() {
	intensityCoalescedTotal.Inc()
}

// RecordSelectionDropped records a preset click ignored while loading.
func RecordSelectionDropped() {
	selectionsDroppedTotal.Inc()
}

// RecordConfirmationExpired records the applied checkmark timing out.
func RecordConfirmationExpired() {
	confirmationsExpiredTotal.Inc()
}

// RecordKeyValidation records an API key validation call.
func RecordKeyValidation(result string, duration time.Duration) {
	keyValidationsTotal.WithLabelValues(result).Inc()
	keyValidationDuration.Observe(duration.Seconds())
}

// SetActiveSessions sets the number of live sessions.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// Handler returns the Prometheus metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
