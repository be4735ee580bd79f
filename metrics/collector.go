// Package metrics exposes Prometheus instruments for the sync and eviction
// loops. A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultNamespace = "modelsync"

type Collector struct {
	syncsTotal       *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	cacheHits        prometheus.Counter
	downloadedBytes  prometheus.Counter
	evictionsTotal   *prometheus.CounterVec
	trackedPublisher prometheus.Gauge
	lastCycle        *prometheus.GaugeVec
}

// NewCollector registers the instruments on reg. A nil reg uses the
// default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		syncsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syncs_total",
				Help:      "Publisher sync outcomes by status and failure reason",
			},
			[]string{"status", "reason"},
		),
		syncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of a single publisher sync",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"status"},
		),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Syncs satisfied from the local artifact cache",
		}),
		downloadedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Artifact bytes fetched from the remote store",
		}),
		evictionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_entries_evicted_total",
				Help:      "Cache entries visited by eviction, by result",
			},
			[]string{"result"},
		),
		trackedPublisher: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_publishers",
			Help:      "Publishers currently held by the tracker",
		}),
		lastCycle: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_timestamp_seconds",
				Help:      "Unix time a loop last completed",
			},
			[]string{"loop"},
		),
	}
}

// RecordSync counts one sync outcome. reason is empty for non-failures.
func (c *Collector) RecordSync(status, reason string, d time.Duration) {
	if c == nil {
		return
	}
	c.syncsTotal.WithLabelValues(status, reason).Inc()
	c.syncDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) RecordDownload(n int) {
	if c == nil {
		return
	}
	c.downloadedBytes.Add(float64(n))
}

func (c *Collector) RecordEviction(kept, recent, removed, failed int) {
	if c == nil {
		return
	}
	c.evictionsTotal.WithLabelValues("kept").Add(float64(kept))
	c.evictionsTotal.WithLabelValues("recent").Add(float64(recent))
	c.evictionsTotal.WithLabelValues("removed").Add(float64(removed))
	c.evictionsTotal.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) SetTracked(n int) {
	if c == nil {
		return
	}
	c.trackedPublisher.Set(float64(n))
}

// MarkCycle stamps the completion time of loop ("sync" or "evict").
func (c *Collector) MarkCycle(loop string, at time.Time) {
	if c == nil {
		return
	}
	c.lastCycle.WithLabelValues(loop).Set(float64(at.Unix()))
}
