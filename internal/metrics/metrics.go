package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumeDuration tracks the latency of consumption processing
	ConsumeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "expedition_consume_duration_seconds",
			Help: "Duration of consumption requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"status"}, // success or failure
	)

	// IntegrityFailures counts identity decryption rejections. These are
	// security events, tracked separately from ordinary not-found errors.
	IntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brambler_integrity_failures_total",
			Help: "Total number of identity decryptions rejected by the integrity check",
		},
	)
)

// RecordConsumeDuration records the duration of a consumption request
func RecordConsumeDuration(status string, duration float64) {
	ConsumeDuration.WithLabelValues(status).Observe(duration)
}
