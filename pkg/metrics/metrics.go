// Package metrics wires the store's operational counters into
// github.com/prometheus/client_golang, following the teacher's
// pkg/state/monitoring.go promauto-registration style, trimmed to the
// gauges and histograms osmosis-store actually emits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the store and save-state
// layers report. A nil *Metrics is valid everywhere it's used — every
// method is a no-op on a nil receiver, so callers that don't want
// Prometheus wiring can simply not construct one.
type Metrics struct {
	OpsApplied         *prometheus.CounterVec
	OpFailures         *prometheus.CounterVec
	Rewinds            prometheus.Counter
	RewindDroppedOps   prometheus.Histogram
	SavePointCount      prometheus.Gauge
	SavePointsMerged    prometheus.Counter
	GarbageCollections prometheus.Counter
	DispatchDuration   prometheus.Histogram
	DispatchFailures   *prometheus.CounterVec
	SubscriptionCount  prometheus.Gauge
}

// New registers every metric against reg (pass prometheus.DefaultRegisterer
// for the global registry, or a fresh prometheus.NewRegistry() in tests to
// avoid cross-test collisions).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OpsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osmosis",
			Subsystem: "savestate",
			Name:      "ops_applied_total",
			Help:      "Operations applied to the log, by action kind.",
		}, []string{"kind"}),
		OpFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osmosis",
			Subsystem: "savestate",
			Name:      "op_failures_total",
			Help:      "Recoverable per-operation failures, by kind.",
		}, []string{"kind"}),
		Rewinds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "osmosis",
			Subsystem: "savestate",
			Name:      "rewinds_total",
			Help:      "Number of out-of-order inserts that triggered a rewind.",
		}),
		RewindDroppedOps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "osmosis",
			Subsystem: "savestate",
			Name:      "rewind_dropped_ops",
			Help:      "Count of ops dropped per rewind before replay.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		SavePointCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "osmosis",
			Subsystem: "savestate",
			Name:      "save_points",
			Help:      "Current number of save points in the ladder.",
		}),
		SavePointsMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "osmosis",
			Subsystem: "savestate",
			Name:      "save_points_merged_total",
			Help:      "Number of save-point compaction merges performed.",
		}),
		GarbageCollections: f.NewCounter(prometheus.CounterOpts{
			Namespace: "osmosis",
			Subsystem: "savestate",
			Name:      "garbage_collections_total",
			Help:      "Number of GarbageCollect calls.",
		}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "osmosis",
			Subsystem: "store",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of Store.Dispatch calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		DispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osmosis",
			Subsystem: "store",
			Name:      "dispatch_failures_total",
			Help:      "Dispatches that produced at least one Failure, by reason.",
		}, []string{"reason"}),
		SubscriptionCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "osmosis",
			Subsystem: "store",
			Name:      "subscriptions",
			Help:      "Currently registered live-query subscriptions.",
		}),
	}
}

func (m *Metrics) opApplied(kind string) {
	if m == nil {
		return
	}
	m.OpsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) opFailure(kind string) {
	if m == nil {
		return
	}
	m.OpFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) rewind(dropped int) {
	if m == nil {
		return
	}
	m.Rewinds.Inc()
	m.RewindDroppedOps.Observe(float64(dropped))
}

func (m *Metrics) savePoints(n int) {
	if m == nil {
		return
	}
	m.SavePointCount.Set(float64(n))
}

func (m *Metrics) savePointMerged() {
	if m == nil {
		return
	}
	m.SavePointsMerged.Inc()
}

func (m *Metrics) garbageCollected() {
	if m == nil {
		return
	}
	m.GarbageCollections.Inc()
}

func (m *Metrics) dispatch(d time.Duration, failureReasons []string) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
	for _, reason := range failureReasons {
		m.DispatchFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) subscriptions(n int) {
	if m == nil {
		return
	}
	m.SubscriptionCount.Set(float64(n))
}

// Hooks is the subset of Metrics' recorders savestate needs; savestate
// depends on this narrow interface rather than *Metrics directly so it
// never imports the prometheus client library itself.
type Hooks interface {
	OpApplied(kind string)
	OpFailure(kind string)
	Rewind(dropped int)
	SavePoints(n int)
	SavePointMerged()
	GarbageCollected()
}

// AsHooks adapts m to the Hooks interface consumed by pkg/savestate. A nil
// *Metrics still satisfies Hooks and no-ops every call.
func (m *Metrics) AsHooks() Hooks { return hooksAdapter{m} }

type hooksAdapter struct{ m *Metrics }

func (h hooksAdapter) OpApplied(kind string)  { h.m.opApplied(kind) }
func (h hooksAdapter) OpFailure(kind string)  { h.m.opFailure(kind) }
func (h hooksAdapter) Rewind(dropped int)     { h.m.rewind(dropped) }
func (h hooksAdapter) SavePoints(n int)       { h.m.savePoints(n) }
func (h hooksAdapter) SavePointMerged()       { h.m.savePointMerged() }
func (h hooksAdapter) GarbageCollected()      { h.m.garbageCollected() }

// DispatchObserver is the narrow interface pkg/osmstore depends on.
type DispatchObserver interface {
	Dispatch(d time.Duration, failureReasons []string)
	Subscriptions(n int)
}

func (m *Metrics) AsDispatchObserver() DispatchObserver { return dispatchAdapter{m} }

type dispatchAdapter struct{ m *Metrics }

func (d dispatchAdapter) Dispatch(dur time.Duration, reasons []string) { d.m.dispatch(dur, reasons) }
func (d dispatchAdapter) Subscriptions(n int)                          { d.m.subscriptions(n) }
