package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ladderwatch"

// Outcome labels shared by cycle, phase and region counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomePartial = "partial"
)

// Ladder holds the update pipeline metrics. A nil *Ladder is valid and
// records nothing, so components can run without a registry in tests.
type Ladder struct {
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	regionUpdates    *prometheus.CounterVec
	phaseRuns        *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	matchInFlight    prometheus.Gauge
}

// NewLadder registers the pipeline metrics with reg.
func NewLadder(reg prometheus.Registerer) *Ladder {
	f := promauto.With(reg)
	return &Ladder{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Update cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of update cycles that ran.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		regionUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_updates_total",
			Help:      "Regional ladder updates by outcome.",
		}, []string{"region", "outcome"}),
		phaseRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_runs_total",
			Help:      "Cycle phase executions by outcome.",
		}, []string{"phase", "outcome"}),
		upstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests by region and status code.",
		}, []string{"region", "status"}),
		upstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"region"}),
		matchInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "match_fetch_in_flight",
			Help:      "Match history requests currently in flight.",
		}),
	}
}

// CycleFinished records a cycle outcome. Skipped cycles carry no duration.
func (m *Ladder) CycleFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.cycleDuration.Observe(d.Seconds())
	}
}

// RegionUpdated records a regional update outcome.
func (m *Ladder) RegionUpdated(region, outcome string) {
	if m == nil {
		return
	}
	m.regionUpdates.WithLabelValues(region, outcome).Inc()
}

// PhaseRan records a phase outcome.
func (m *Ladder) PhaseRan(phase, outcome string) {
	if m == nil {
		return
	}
	m.phaseRuns.WithLabelValues(phase, outcome).Inc()
}

// UpstreamRequest records one logical upstream call. status is the HTTP code,
// "error" when no response was received or "rejected" when the breaker was
// open.
func (m *Ladder) UpstreamRequest(region, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(region, status).Inc()
	m.upstreamDuration.WithLabelValues(region).Observe(d.Seconds())
}

// MatchFetchStarted increments the in-flight gauge.
func (m *Ladder) MatchFetchStarted() {
	if m == nil {
		return
	}
	m.matchInFlight.Inc()
}

// MatchFetchDone decrements the in-flight gauge.
func (m *Ladder) MatchFetchDone() {
	if m == nil {
		return
	}
	m.matchInFlight.Dec()
}
