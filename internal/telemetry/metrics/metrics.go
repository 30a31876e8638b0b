// Package metrics exposes Prometheus collectors for the worklet buffer
// pool and pitch detector, registered against a caller-supplied registry
// so cmd/intonationcore-bench (or any embedding host) controls exposition.
// Grounded on audiocore.MetricsCollector (metrics.go) for the
// record-method-per-event shape, generalized from its AudioCoreMetrics
// wrapper to direct prometheus.Collector fields since this module has no
// equivalent observability package to depend on.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/intonationcore/internal/protocol"
)

// Collector holds the Prometheus metrics intonationcore records. A nil
// *Collector is safe to use: every Record* method is a no-op on a nil
// receiver. A Collector built by New records values whether or not
// Register has been called; they are exposed once it is registered.
type Collector struct {
	poolHitRate         prometheus.Gauge
	poolUtilization     prometheus.Gauge
	poolExhaustedTotal  prometheus.Counter
	pitchLatencySeconds prometheus.Histogram
	pitchDetectedTotal  prometheus.Counter
	volumeRMSDB         prometheus.Gauge

	registered bool
}

// New constructs an unregistered Collector.
func New() *Collector {
	return &Collector{
		poolHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intonationcore",
			Subsystem: "pool",
			Name:      "hit_rate_percent",
			Help:      "Percentage of buffer pool acquires that succeeded.",
		}),
		poolUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intonationcore",
			Subsystem: "pool",
			Name:      "buffer_utilization_percent",
			Help:      "Percentage of pooled buffers currently in use.",
		}),
		poolExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intonationcore",
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Total number of buffer pool acquire attempts that failed.",
		}),
		pitchLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intonationcore",
			Subsystem: "pitch",
			Name:      "detection_latency_seconds",
			Help:      "Wall-clock time spent running pitch detection over one window.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
		pitchDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intonationcore",
			Subsystem: "pitch",
			Name:      "detected_total",
			Help:      "Total number of windows that yielded a pitch result.",
		}),
		volumeRMSDB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intonationcore",
			Subsystem: "volume",
			Name:      "rms_db",
			Help:      "Most recently observed RMS level in dB.",
		}),
	}
}

// Register adds every collector to reg. Safe to call once; a second call
// is a no-op.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if c.registered {
		return nil
	}
	collectors := []prometheus.Collector{
		c.poolHitRate, c.poolUtilization, c.poolExhaustedTotal,
		c.pitchLatencySeconds, c.pitchDetectedTotal, c.volumeRMSDB,
	}
	for _, coll := range collectors {
		if err := reg.Register(coll); err != nil {
			return err
		}
	}
	c.registered = true
	return nil
}

// RecordPoolStats publishes a buffer pool snapshot. A nil Collector is a
// no-op, so callers can wire an optional *Collector without a nil check at
// every call site.
func (c *Collector) RecordPoolStats(stats protocol.BufferPoolStats) {
	if c == nil {
		return
	}
	c.poolHitRate.Set(stats.PoolHitRate)
	c.poolUtilization.Set(stats.BufferUtilizationPercent)
}

// RecordPoolExhausted increments the pool-exhaustion counter once per
// failed acquire.
func (c *Collector) RecordPoolExhausted() {
	if c == nil {
		return
	}
	c.poolExhaustedTotal.Inc()
}

// RecordPitchDetection records the latency of one detector invocation and,
// when detected is true, increments the detected-pitch counter.
func (c *Collector) RecordPitchDetection(duration time.Duration, detected bool) {
	if c == nil {
		return
	}
	c.pitchLatencySeconds.Observe(duration.Seconds())
	if detected {
		c.pitchDetectedTotal.Inc()
	}
}

// RecordVolume publishes the most recent RMS level in dB.
func (c *Collector) RecordVolume(rmsDB float64) {
	if c == nil {
		return
	}
	c.volumeRMSDB.Set(rmsDB)
}
