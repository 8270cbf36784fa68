package slab

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "slab"

// Metrics contains the counters a Slab exposes, mirroring the handful of
// stats SlabAgent keeps directly on its SlabState (count_of_memos_received,
// count_of_memos_reduntantly_received, peer_slab_count) plus a resident
// gauge derived from the memo table itself.
type Metrics struct {
	// MemosReceived counts every memo passed to PutMemo, including
	// duplicates and memos created locally through NewMemo.
	MemosReceived metrics.Counter
	// MemosRedundantlyReceived counts memos that were already resident.
	MemosRedundantlyReceived metrics.Counter
	// MemosResident is the current size of the local memo table.
	MemosResident metrics.Gauge
	// PeerSlabCount is the number of distinct peer slabs known.
	PeerSlabCount metrics.Gauge
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library. Optionally, labels can be provided along with their values
// ("foo", "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		MemosReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "memos_received",
			Help:      "Total number of memos put into the slab, local or received.",
		}, labels).With(labelsAndValues...),
		MemosRedundantlyReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "memos_redundantly_received",
			Help:      "Total number of memos received that were already resident.",
		}, labels).With(labelsAndValues...),
		MemosResident: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "memos_resident",
			Help:      "Current number of memos held in the local memo table.",
		}, labels).With(labelsAndValues...),
		PeerSlabCount: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peer_slab_count",
			Help:      "Number of distinct peer slabs known to this slab.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics, used by tests and by callers that have
// not wired a Prometheus registry.
func NopMetrics() *Metrics {
	return &Metrics{
		MemosReceived:            discard.NewCounter(),
		MemosRedundantlyReceived: discard.NewCounter(),
		MemosResident:            discard.NewGauge(),
		PeerSlabCount:            discard.NewGauge(),
	}
}
