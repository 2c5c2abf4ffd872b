package notify

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the notification counters.
type Metrics struct {
	Dispatched *prometheus.CounterVec
	Sent       *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Dropped    *prometheus.CounterVec
	Active     prometheus.Gauge
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the metrics registered with the default registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics registers the notification metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_dispatched_total",
			Help: "Total number of notifications dispatched",
		}, []string{"channel"}),
		Sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Total number of notifications sent",
		}, []string{"channel", "status"}), // success|failure
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Notification send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		}, []string{"channel"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_dropped_total",
			Help: "Total number of dropped notifications",
		}, []string{"channel", "reason"}), // pool_full|circuit_open|shutdown
		Active: f.NewGauge(prometheus.GaugeOpts{
			Name: "notification_active_goroutines",
			Help: "Number of notification deliveries in flight",
		}),
	}
}

func (m *Metrics) recordResult(channel string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.Sent.WithLabelValues(channel, status).Inc()
	m.Duration.WithLabelValues(channel).Observe(d.Seconds())
}
