package dedup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldnotify"

var (
	cacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "cache_size",
			Help:      "Number of fingerprints in the fast tier",
		},
	)

	duplicatesBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "duplicates_blocked_total",
			Help:      "Duplicate requests blocked by source tier",
		},
		[]string{"source"},
	)

	degradedLookups = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "degraded_lookups_total",
			Help:      "Durable-tier lookups that failed, admitting dedup-blind",
		},
	)

	degradedWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "degraded_writes_total",
			Help:      "Durable-tier writes that failed",
		},
		[]string{"op"},
	)

	writerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "status_writer",
			Name:      "queue_depth",
			Help:      "Pending status updates in the writer queue",
		},
	)

	writerFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_writer",
			Name:      "flushed_total",
			Help:      "Status updates written to the durable tier",
		},
		[]string{"status"},
	)

	writerDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_writer",
			Name:      "dropped_total",
			Help:      "Status updates dropped because the queue was full",
		},
	)

	writerFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_writer",
			Name:      "failed_total",
			Help:      "Status updates that exhausted all write attempts",
		},
	)
)

func recordCacheSize(size int)          { cacheSize.Set(float64(size)) }
func recordDuplicate(source string)     { duplicatesBlocked.WithLabelValues(source).Inc() }
func recordDegradedLookup()             { degradedLookups.Inc() }
func recordDegradedWrite(op string)     { degradedWrites.WithLabelValues(op).Inc() }
func recordWriterQueueDepth(depth int)  { writerQueueDepth.Set(float64(depth)) }
func recordWriterFlushed(status string) { writerFlushed.WithLabelValues(status).Inc() }
func recordWriterDropped()              { writerDropped.Inc() }
func recordWriterFailed()               { writerFailed.Inc() }
