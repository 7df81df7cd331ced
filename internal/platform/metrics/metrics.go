package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the VR gallery backend.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	sessionsStartedTotal prometheus.Counter
	sessionsFailedTotal  prometheus.Counter
	sessionsReapedTotal  prometheus.Counter
	playlistsServedTotal prometheus.Counter
	segmentsServedTotal  prometheus.Counter
	activeSessions       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the backend.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrgallery_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrgallery_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	sessionsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrgallery_sessions_started_total",
		Help: "Total number of transcoding sessions started",
	})
	sessionsFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrgallery_sessions_failed_total",
		Help: "Total number of sessions that ended before becoming ready",
	})
	sessionsReapedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrgallery_sessions_reaped_total",
		Help: "Total number of sessions stopped by the idle reaper",
	})
	playlistsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrgallery_playlists_served_total",
		Help: "Total number of playlist responses served",
	})
	segmentsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrgallery_segments_served_total",
		Help: "Total number of media segment responses served",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vrgallery_active_sessions",
		Help: "Number of transcoding sessions that are not terminated",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		sessionsStartedTotal,
		sessionsFailedTotal,
		sessionsReapedTotal,
		playlistsServedTotal,
		segmentsServedTotal,
		activeSessions,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		sessionsStartedTotal: sessionsStartedTotal,
		sessionsFailedTotal:  sessionsFailedTotal,
		sessionsReapedTotal:  sessionsReapedTotal,
		playlistsServedTotal: playlistsServedTotal,
		segmentsServedTotal:  segmentsServedTotal,
		activeSessions:       activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// IncSessionsStarted increments the sessions started counter.
func (m *Metrics) IncSessionsStarted() {
	if m != nil {
		m.sessionsStartedTotal.Inc()
	}
}

// IncSessionsFailed increments the sessions failed counter.
func (m *Metrics) IncSessionsFailed() {
	if m != nil {
		m.sessionsFailedTotal.Inc()
	}
}

// IncSessionsReaped increments the idle-reaped sessions counter.
func (m *Metrics) IncSessionsReaped() {
	if m != nil {
		m.sessionsReapedTotal.Inc()
	}
}

// IncPlaylistsServed increments the playlists served counter.
func (m *Metrics) IncPlaylistsServed() {
	if m != nil {
		m.playlistsServedTotal.Inc()
	}
}

// IncSegmentsServed increments the segments served counter.
func (m *Metrics) IncSegmentsServed() {
	if m != nil {
		m.segmentsServedTotal.Inc()
	}
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.activeSessions.Set(float64(n))
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
