package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns its registry so several instances (tests, the CLI) never
// collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	fallbacks        prometheus.Counter
	selectedModules  prometheus.Histogram
	analysisDuration prometheus.Histogram
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rai",
			Name:      "analyses_total",
			Help:      "Analysis requests by mode and final status",
		}, []string{"mode", "status"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rai",
			Name:      "llm_requests_total",
			Help:      "LLM attempts by provider and outcome (ok or error kind)",
		}, []string{"provider", "outcome"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rai",
			Name:      "llm_latency_seconds",
			Help:      "Latency of single LLM attempts",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}, []string{"provider"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rai",
			Name:      "selection_fallbacks_total",
			Help:      "Selections that degraded to the fixed fallback set",
		}),
		selectedModules: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rai",
			Name:      "selected_modules",
			Help:      "Number of modules per selection",
			Buckets:   []float64{4, 6, 8, 10, 12, 14, 18, 24},
		}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rai",
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis latency including retries",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

func (r *Recorder) ObserveLLMAttempt(provider, outcome string, elapsed time.Duration) {
	r.llmRequests.WithLabelValues(provider, outcome).Inc()
	r.llmLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveSelection(modules int, fallback bool) {
	r.selectedModules.Observe(float64(modules))
	if fallback {
		r.fallbacks.Inc()
	}
}

func (r *Recorder) ObserveAnalysis(mode, status string, elapsed time.Duration) {
	r.analyses.WithLabelValues(mode, status).Inc()
	r.analysisDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
