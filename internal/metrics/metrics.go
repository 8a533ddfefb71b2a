// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal         prometheus.Counter
	CapturesTotal       prometheus.Counter
	ParseErrorsTotal    prometheus.Counter
	PublishedTotal      prometheus.Counter
	ReconnectsTotal     prometheus.Counter
	NavigationLostTotal prometheus.Counter
	StaleFields         prometheus.Gauge
	SessionUp           prometheus.Gauge
	CycleSeconds        prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heatvision_cycles_total",
			Help: "Completed extraction cycles.",
		}),
		CapturesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heatvision_captures_total",
			Help: "Framebuffer captures taken.",
		}),
		ParseErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heatvision_parse_errors_total",
			Help: "Recognitions rejected by field validation.",
		}),
		PublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heatvision_published_events_total",
			Help: "Reading events handed to the publish sink.",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heatvision_reconnects_total",
			Help: "Console session reconnect attempts.",
		}),
		NavigationLostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heatvision_navigation_lost_total",
			Help: "Navigations abandoned after marker verification failed.",
		}),
		StaleFields: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heatvision_stale_fields",
			Help: "Tracked fields currently flagged stale.",
		}),
		SessionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heatvision_session_up",
			Help: "Whether a console session is currently live.",
		}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heatvision_cycle_seconds",
			Help:    "Wall time of one full screen rotation.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.CapturesTotal,
		m.ParseErrorsTotal,
		m.PublishedTotal,
		m.ReconnectsTotal,
		m.NavigationLostTotal,
		m.StaleFields,
		m.SessionUp,
		m.CycleSeconds,
	)
	return m
}

// Handler serves the registry for the probe listener's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
