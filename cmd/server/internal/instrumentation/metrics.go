package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the server.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	MessagesSent     *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	ExportErrors     prometheus.Counter
}

// NewMetrics creates and registers all metrics against reg.
// Tests pass a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "dataville_connected_clients",
			Help: "Number of currently connected websocket clients",
		}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dataville_messages_sent_total",
			Help: "Total server->client pushes by envelope type",
		}, []string{"type"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dataville_tick_duration_seconds",
			Help:    "Time spent advancing the simulator and broadcasting",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		}),
		ExportErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "dataville_export_errors_total",
			Help: "Total failed Kafka tick exports",
		}),
	}
}
