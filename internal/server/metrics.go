package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "eap"

// metrics holds the server's collectors. Each server registers on its own
// registry so several servers can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	calculations    *prometheus.CounterVec
	exports         *prometheus.CounterVec
	rateLimited     prometheus.Counter
	records         prometheus.Gauge
	totalEnergy     prometheus.Gauge
	totalEmissions  prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		}, []string{"operation", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
		calculations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "calculations_total",
			Help:      "Total number of calculations added, by energy source",
		}, []string{"source"}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exports_total",
			Help:      "Total number of exports, by format",
		}, []string{"format"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
		records: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "records",
			Help:      "Current number of records in the history",
		}),
		totalEnergy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "total_energy_kwh",
			Help:      "Current total energy of the history in kWh",
		}),
		totalEmissions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "total_emissions_kg",
			Help:      "Current total CO2 emissions of the history in kg",
		}),
	}
}
