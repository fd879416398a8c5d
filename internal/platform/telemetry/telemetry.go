// Package telemetry exposes Prometheus metrics for the booking server: HTTP
// request latency by route and counters for the appointment workflow.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "booking"

// durationBuckets are HTTP latency bucket bounds in seconds.
var durationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// Config controls what the provider registers.
type Config struct {
	ServiceVersion string
	Environment    string
	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// Provider owns a private registry so tests can build as many as they need.
type Provider struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge

	created     *prometheus.CounterVec
	rescheduled prometheus.Counter
	conflicts   *prometheus.CounterVec
	changes     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// New creates a provider and registers all collectors.
func New(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
	}

	p := &Provider{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   durationBuckets,
		}, []string{"method", "route", "status_code"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of in-flight HTTP requests.",
		}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "appointments_created_total",
			Help:        "Appointments created, by initial status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		rescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "appointments_rescheduled_total",
			Help:        "Appointments moved to a new time.",
			ConstLabels: constLabels,
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "slot_conflicts_total",
			Help:        "Bookings rejected because the doctor was already booked.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "status_transitions_total",
			Help:        "Applied appointment status changes.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "status_transitions_rejected_total",
			Help:        "Status changes refused by the transition table.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		p.requestDuration, p.activeRequests,
		p.created, p.rescheduled, p.conflicts, p.changes, p.rejected,
	)
	if cfg.RuntimeCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

// Registry is exposed for tests and for callers that add their own collectors.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// Middleware records request latency labelled by the echo route pattern, so
// /appointments/:id stays one series regardless of the id.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.activeRequests.Inc()
			defer p.activeRequests.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				// Render now so the recorded status matches what the client sees.
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			p.requestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(c.Response().Status)).
				Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		Registry: p.registry,
	}))
}

func (p *Provider) AppointmentCreated(status string) {
	p.created.WithLabelValues(status).Inc()
}

func (p *Provider) AppointmentRescheduled() {
	p.rescheduled.Inc()
}

func (p *Provider) SlotConflict(operation string) {
	p.conflicts.WithLabelValues(operation).Inc()
}

func (p *Provider) StatusChanged(from, to string) {
	p.changes.WithLabelValues(from, to).Inc()
}

func (p *Provider) TransitionRejected(from, to string) {
	p.rejected.WithLabelValues(from, to).Inc()
}
