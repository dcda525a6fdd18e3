package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every series.
const Namespace = "sdgateway"

// Collector owns the Prometheus series. It registers on its own registry
// so several collectors can coexist in one process (tests).
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	engineDuration  *prometheus.HistogramVec
	imagesPersisted *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

// NewCollector creates a Collector with Go runtime and process collectors
// already registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	generationBuckets := []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}

	return &Collector{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Generation requests by endpoint and outcome",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end generation request duration in seconds",
				Buckets:   generationBuckets,
			},
			[]string{"endpoint"},
		),
		engineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "engine_duration_seconds",
				Help:      "Time spent inside inference engine calls in seconds",
				Buckets:   generationBuckets,
			},
			[]string{"operation", "status"},
		),
		imagesPersisted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "images_persisted_total",
				Help:      "Images written to disk by endpoint",
			},
			[]string{"endpoint"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "requests_in_flight",
				Help:      "Generation requests currently running",
			},
		),
	}
}

// RecordRequest records one finished request.
func (c *Collector) RecordRequest(endpoint, status string, duration time.Duration, images int) {
	c.requestsTotal.WithLabelValues(endpoint, status).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if images > 0 {
		c.imagesPersisted.WithLabelValues(endpoint).Add(float64(images))
	}
}

// RecordEngineCall records one engine call.
func (c *Collector) RecordEngineCall(operation string, err error, duration time.Duration) {
	status := TaskStatusSuccess
	if err != nil {
		status = TaskStatusError
	}
	c.engineDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns the matching
// decrement.
func (c *Collector) TrackInFlight() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
