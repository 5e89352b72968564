package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

var _ ports.AssetObserver = (*Recorder)(nil)

// Recorder exports asset polling and weather cache counters. Each Recorder
// owns its registry so tests can build as many as they like.
type Recorder struct {
	registry     *prometheus.Registry
	pollAttempts *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	resolution   prometheus.Histogram
	cache        *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aule_asset_poll_attempts_total",
			Help: "Status checks issued against the video host, by result.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aule_asset_outcomes_total",
			Help: "Asset jobs that reached a terminal state.",
		}, []string{"state"}),
		resolution: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aule_asset_resolution_seconds",
			Help:    "Time from submission to a terminal state.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aule_weather_cache_total",
			Help: "Weather cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		r.pollAttempts,
		r.outcomes,
		r.resolution,
		r.cache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObservePoll(result string) {
	r.pollAttempts.WithLabelValues(norm(result)).Inc()
}

func (r *Recorder) ObserveOutcome(state domain.AssetState, elapsed time.Duration) {
	r.outcomes.WithLabelValues(norm(string(state))).Inc()
	r.resolution.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveCache(result string) {
	r.cache.WithLabelValues(norm(result)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func norm(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
