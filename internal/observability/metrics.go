// Package observability holds the Prometheus collectors shared by the session core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "timesheet_service"

var (
	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Start, stop and delete requests grouped by outcome (ok or the domain error kind).",
	}, []string{"transition", "outcome"})

	intervalPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "last_transition_timestamp_seconds",
		Help:      "Unix timestamp of the most recent accepted transition.",
	})

	guardWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "guard_wait_seconds",
		Help:      "Time spent waiting for a user's exclusive region.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	openChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "open_channels",
		Help:      "Push channels currently registered.",
	})

	deliveryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "status_messages_total",
		Help:      "Status messages offered to channels, labeled by reason and result (delivered or dropped).",
	}, []string{"reason", "result"})

	resyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "resync_duration_seconds",
		Help:      "Time spent pushing a periodic resync to every registered user.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(transitionCounter, intervalPersistGauge, guardWait, openChannels, deliveryCounter, resyncDuration)
}

// RecordTransition counts one start/stop/delete attempt.
func RecordTransition(transition, outcome string) {
	transitionCounter.WithLabelValues(transition, outcome).Inc()
}

// RecordTransitionAccepted moves the watermark gauge.
func RecordTransitionAccepted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	intervalPersistGauge.Set(float64(ts.Unix()))
}

// ObserveGuardWait records how long a caller queued behind same-user work.
func ObserveGuardWait(d time.Duration) {
	guardWait.Observe(d.Seconds())
}

// ChannelOpened increments the open channel gauge.
func ChannelOpened() { openChannels.Inc() }

// ChannelClosed decrements the open channel gauge.
func ChannelClosed() { openChannels.Dec() }

// RecordDelivery counts a status message handed to (or dropped by) one channel.
func RecordDelivery(reason string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	deliveryCounter.WithLabelValues(reason, result).Inc()
}

// ObserveResync records one full resync pass.
func ObserveResync(d time.Duration) {
	resyncDuration.Observe(d.Seconds())
}

// TransitionCount exposes a counter child for tests.
func TransitionCount(transition, outcome string) prometheus.Counter {
	return transitionCounter.WithLabelValues(transition, outcome)
}

// DeliveryCount exposes a counter child for tests.
func DeliveryCount(reason string, delivered bool) prometheus.Counter {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	return deliveryCounter.WithLabelValues(reason, result)
}
