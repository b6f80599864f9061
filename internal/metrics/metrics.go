package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xiaozhi_api_requests_total",
			Help: "Requests sent to the Xiaozhi API by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xiaozhi_api_request_duration_seconds",
			Help:    "Round trip time of Xiaozhi API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	lastCodeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xiaozhi_api_last_code",
			Help: "Last in-body code returned for a device (-1 on transport failure)",
		},
		[]string{"device_id"},
	)
	registeredDevices = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xiaozhi_registered_devices",
		Help: "Number of devices currently registered with the gateway",
	})
)

// Collectors exposes the gateway collectors for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		requestsTotal,
		requestDuration,
		lastCodeGauge,
		registeredDevices,
	}
}

// NewRegistry builds a registry holding the gateway collectors plus the Go runtime ones.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(Collectors()...)
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

func ObserveRequest(deviceID, endpoint, outcome string, code int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	lastCodeGauge.WithLabelValues(deviceID).Set(float64(code))
}

func SetRegisteredDevices(count int) {
	registeredDevices.Set(float64(count))
}

