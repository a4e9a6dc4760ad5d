// Package metrics exposes Prometheus collectors for the HTTP layer and the
// patient service. Collectors live on their own registry so that tests can
// build as many as they like.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/pms/internal/domain/patient"
)

type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	OperationsTotal    *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	GatewayDuration    *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patients",
			Name:      "operations_total",
			Help:      "Patient operations by name and outcome.",
		}, []string{"operation", "outcome"}),

		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patients",
			Name:      "validation_failures_total",
			Help:      "Patient writes rejected by validation.",
		}, []string{"operation"}),

		GatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Collection load/save latency by outcome.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"operation", "outcome"}),
	}
}

func (m *Collector) Registry() *prometheus.Registry { return m.registry }

// Handler serves the collector's registry in the Prometheus text format.
func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordOperation implements patient.Recorder.
func (m *Collector) RecordOperation(op string, err error) {
	m.OperationsTotal.WithLabelValues(op, outcome(err)).Inc()
	var ve *patient.ValidationError
	if errors.As(err, &ve) {
		m.ValidationFailures.WithLabelValues(op).Inc()
	}
}

// ObserveGateway implements patient.Recorder.
func (m *Collector) ObserveGateway(op string, d time.Duration, err error) {
	m.GatewayDuration.WithLabelValues(op, outcome(err)).Observe(d.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, patient.ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, patient.ErrDuplicateID):
		return "duplicate"
	case errors.Is(err, patient.ErrInvalidArgument):
		return "invalid_argument"
	}
	var ve *patient.ValidationError
	if errors.As(err, &ve) {
		return "invalid"
	}
	return "error"
}
