// Package metrics collects render job metrics on a private Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records segment outcomes, alignment decisions and sync quality.
// A nil *Collector discards everything.
type Collector struct {
	reg *prometheus.Registry

	segmentsTotal   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	alignmentsTotal *prometheus.CounterVec
	syncError       prometheus.Histogram
	syncDrifts      prometheus.Counter
	oracleFallbacks prometheus.Counter
	durationRetries prometheus.Counter

	logger *zap.Logger
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		segmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments processed, by outcome",
		}, []string{"status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each per-segment stage",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		alignmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alignments_total",
			Help:      "Alignment plans, by strategy",
		}, []string{"strategy"}),
		syncError: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_error_seconds",
			Help:      "Absolute difference between final clip and target duration",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		syncDrifts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_drifts_total",
			Help:      "Clips whose sync error exceeded tolerance",
		}),
		oracleFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_fallbacks_total",
			Help:      "Segmentation oracle suggestions rejected in favor of punctuation splitting",
		}),
		durationRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duration_retries_total",
			Help:      "Media duration reads that were retried",
		}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Registry exposes the private registry, mainly for tests and exporters.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

func (c *Collector) RecordSegment(status string) {
	if c == nil {
		return
	}
	c.segmentsTotal.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) RecordAlignment(strategy string) {
	if c == nil {
		return
	}
	c.alignmentsTotal.WithLabelValues(strategy).Inc()
}

// ObserveSync records a sync check; drifts are counted separately.
func (c *Collector) ObserveSync(errSeconds float64, ok bool) {
	if c == nil {
		return
	}
	c.syncError.Observe(errSeconds)
	if !ok {
		c.syncDrifts.Inc()
	}
}

func (c *Collector) RecordOracleFallback() {
	if c == nil {
		return
	}
	c.oracleFallbacks.Inc()
}

func (c *Collector) RecordDurationRetry() {
	if c == nil {
		return
	}
	c.durationRetries.Inc()
}

// WriteFile writes the registry in text exposition format, for node_exporter's
// textfile collector or later inspection.
func (c *Collector) WriteFile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return err
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
