// Package metrics exposes Prometheus counters for the mixing engine.
// Everything here is safe to touch from audio callbacks: prometheus
// counters are single atomic adds.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buffersDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualmix",
		Subsystem: "engine",
		Name:      "buffers_delivered_total",
		Help:      "Converted capture buffers handed to a bus mix input",
	}, []string{"bus"})

	buffersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualmix",
		Subsystem: "engine",
		Name:      "buffers_dropped_total",
		Help:      "Capture buffers discarded because the target bus was not running",
	}, []string{"bus"})

	conversionFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualmix",
		Subsystem: "engine",
		Name:      "conversion_faults_total",
		Help:      "Capture buffers dropped due to format conversion failure",
	}, []string{"device"})

	engineRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dualmix",
		Subsystem: "engine",
		Name:      "restarts_total",
		Help:      "Full stop/start cycles caused by device rebinding",
	})

	inputsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dualmix",
		Subsystem: "engine",
		Name:      "inputs_active",
		Help:      "Capture channels currently in the mix",
	})
)

// BufferDelivered counts one buffer handed to the named bus.
func BufferDelivered(bus string) {
	buffersDelivered.WithLabelValues(bus).Inc()
}

// BufferDropped counts one buffer discarded for the named bus.
func BufferDropped(bus string) {
	buffersDropped.WithLabelValues(bus).Inc()
}

// ConversionFault counts one dropped capture buffer for a device.
func ConversionFault(deviceID string) {
	conversionFaults.WithLabelValues(deviceID).Inc()
}

// EngineRestart counts one full stop/start reconfiguration cycle.
func EngineRestart() {
	engineRestarts.Inc()
}

// SetInputsActive records the current number of capture channels.
func SetInputsActive(n int) {
	inputsActive.Set(float64(n))
}

// DeleteDeviceMetrics drops per-device series when an input is removed.
func DeleteDeviceMetrics(deviceID string) {
	conversionFaults.DeleteLabelValues(deviceID)
}
