// Package metrics exposes EnigmaIOT's runtime counters and gauges to
// Prometheus, grounded on the package-level CounterVec/GaugeVec pattern and
// idempotent InitMetrics() registration style used for wmap's sniffer
// telemetry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NodesRegistered is the current count of nodes in the Registered state.
	NodesRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "enigmaiot",
		Name:      "nodes_registered",
		Help:      "Current number of nodes in the Registered state",
	})

	// QueueOverflowTotal counts receive-ring entries pushed into the
	// overflow area because the primary ring was full.
	QueueOverflowTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "enigmaiot",
		Name:      "queue_overflow_total",
		Help:      "Total number of frames spilled into the overflow queue",
	})

	// QueueDroppedTotal counts frames dropped because both the primary ring
	// and its overflow area were full.
	QueueDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "enigmaiot",
		Name:      "queue_dropped_total",
		Help:      "Total number of frames dropped after the overflow queue also filled",
	})

	// PacketsOKTotal counts frames that decrypted and passed replay checks.
	PacketsOKTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enigmaiot",
		Name:      "packets_ok_total",
		Help:      "Total number of frames accepted",
	}, []string{"direction"})

	// PacketsErrTotal counts frames rejected by decrypt, HMAC, or replay
	// checks, labeled by the reason.
	PacketsErrTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enigmaiot",
		Name:      "packets_err_total",
		Help:      "Total number of frames rejected",
	}, []string{"direction", "reason"})

	// HandshakesTotal counts completed handshakes, labeled by outcome.
	HandshakesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enigmaiot",
		Name:      "handshakes_total",
		Help:      "Total number of handshake attempts by outcome",
	}, []string{"outcome"})

	// InvalidationsTotal counts node invalidations, labeled by reason.
	InvalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enigmaiot",
		Name:      "invalidations_total",
		Help:      "Total number of node invalidations by reason",
	}, []string{"reason"})

	once sync.Once
)

// InitMetrics registers every collector with the default Prometheus
// registry. Idempotent: safe to call from both the gateway and node
// binaries even if imported more than once in a test binary.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(NodesRegistered)
		prometheus.DefaultRegisterer.Register(QueueOverflowTotal)
		prometheus.DefaultRegisterer.Register(QueueDroppedTotal)
		prometheus.DefaultRegisterer.Register(PacketsOKTotal)
		prometheus.DefaultRegisterer.Register(PacketsErrTotal)
		prometheus.DefaultRegisterer.Register(HandshakesTotal)
		prometheus.DefaultRegisterer.Register(InvalidationsTotal)
	})
}
