// Package metrics exports pipeline accounting to Prometheus.
//
// A Collector implements capture.Observer and record.Observer, so it can be
// passed straight to capture.WithObserver and record.WithObserver.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogpu/vidflow/capture"
	"github.com/gogpu/vidflow/frame"
	"github.com/gogpu/vidflow/record"
)

// DefaultNamespace is used when NewCollector gets an empty namespace.
const DefaultNamespace = "vidflow"

// Collector owns a private registry with the capture and record metrics.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	framesProcessed prometheus.Counter
	framesDropped   *prometheus.CounterVec
	frameLatency    prometheus.Histogram

	samplesWritten prometheus.Counter
	samplesSkipped *prometheus.CounterVec
	recordElapsed  prometheus.Gauge
}

// NewCollector creates and registers the metrics.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Collector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),

		framesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_processed_total",
			Help:      "Camera frames converted and pushed into the graph",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_dropped_total",
			Help:      "Camera frames dropped before reaching the graph",
		}, []string{"reason"}), // reason: busy, stopped, allocation, invalid
		frameLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frame_latency_seconds",
			Help:      "Time from camera delivery to graph push",
			Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.25},
		}),

		samplesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "record",
			Name:      "samples_total",
			Help:      "Samples handed to the recording consumer",
		}),
		samplesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "record",
			Name:      "samples_skipped_total",
			Help:      "Frames the recorder did not turn into samples",
		}, []string{"reason"}),
		recordElapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "record",
			Name:      "elapsed_seconds",
			Help:      "Presentation time of the last sample since the session's first",
		}),
	}
	c.registry.MustRegister(
		c.framesProcessed,
		c.framesDropped,
		c.frameLatency,
		c.samplesWritten,
		c.samplesSkipped,
		c.recordElapsed,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// FrameProcessed implements capture.Observer.
func (c *Collector) FrameProcessed(latency time.Duration) {
	c.framesProcessed.Inc()
	c.frameLatency.Observe(latency.Seconds())
}

// FrameDropped implements capture.Observer.
func (c *Collector) FrameDropped(reason capture.DropReason) {
	c.framesDropped.WithLabelValues(string(reason)).Inc()
}

// SampleWritten implements record.Observer.
func (c *Collector) SampleWritten(s record.Sample) {
	c.samplesWritten.Inc()
	c.recordElapsed.Set(s.Elapsed.Seconds())
}

// SampleSkipped implements record.Observer.
func (c *Collector) SampleSkipped(reason record.SkipReason) {
	c.samplesSkipped.WithLabelValues(string(reason)).Inc()
}

// WatchPool exports the statistics of a framebuffer pool under the given
// pool label. Values are read at scrape time.
func (c *Collector) WatchPool(name string, pool *frame.Pool) error {
	labels := prometheus.Labels{"pool": name}
	gauge := func(metric, help string, fn func(frame.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   c.namespace,
			Subsystem:   "framebuffer",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return fn(pool.Stats()) })
	}
	counter := func(metric, help string, fn func(frame.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   c.namespace,
			Subsystem:   "framebuffer",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return fn(pool.Stats()) })
	}

	collectors := []prometheus.Collector{
		gauge("idle", "Idle framebuffers kept for reuse",
			func(s frame.Stats) float64 { return float64(s.Idle) }),
		gauge("idle_bytes", "Memory held by idle framebuffers",
			func(s frame.Stats) float64 { return float64(s.IdleBytes) }),
		gauge("in_use", "Pooled framebuffers currently referenced",
			func(s frame.Stats) float64 { return float64(s.InUse) }),
		gauge("wrapped", "Externally backed framebuffers currently referenced",
			func(s frame.Stats) float64 { return float64(s.Wrapped) }),
		counter("allocations_total", "Framebuffers allocated on the device",
			func(s frame.Stats) float64 { return float64(s.Allocations) }),
		counter("reuses_total", "Acquisitions served from the idle list",
			func(s frame.Stats) float64 { return float64(s.Reuses) }),
		counter("allocation_failures_total", "Device allocations that failed",
			func(s frame.Stats) float64 { return float64(s.AllocationFailures) }),
	}
	for i, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			for _, done := range collectors[:i] {
				c.registry.Unregister(done)
			}
			return fmt.Errorf("metrics: watch pool %q: %w", name, err)
		}
	}
	return nil
}

var (
	_ capture.Observer = (*Collector)(nil)
	_ record.Observer  = (*Collector)(nil)
)
