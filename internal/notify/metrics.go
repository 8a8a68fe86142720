package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldnotify"

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decisions_total",
			Help:      "Admission decisions by outcome and block reason",
		},
		[]string{"outcome", "reason"},
	)

	channelSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "channel_sends_total",
			Help:      "Per-channel delivery attempts by status",
		},
		[]string{"channel_type", "status"},
	)

	channelSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "channel_send_duration_seconds",
			Help:      "Time to deliver to one channel",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Dispatch operations by terminal outcome",
		},
		[]string{"outcome"},
	)
)

func recordDecision(outcome, reason string) {
	decisionsTotal.WithLabelValues(outcome, reason).Inc()
}

func recordChannelSend(channelType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	channelSends.WithLabelValues(channelType, status).Inc()
	channelSendDuration.WithLabelValues(channelType).Observe(duration.Seconds())
}

func recordDelivery(outcome string) {
	deliveriesTotal.WithLabelValues(outcome).Inc()
}
