package fsm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Metric names.
	MetricNameSendsTotal      = "ramses_fsm_sends_total"
	MetricNameRetriesTotal    = "ramses_fsm_retries_total"
	MetricNameFailuresTotal   = "ramses_fsm_failures_total"
	MetricNameDispatchSeconds = "ramses_fsm_dispatch_duration_seconds"

	// Labels.
	MetricLabelReason = "reason"

	// Failure reasons.
	MetricReasonMaxRetries    = "max_retries"
	MetricReasonOuterTimeout  = "outer_timeout"
	MetricReasonBufferFull    = "buffer_full"
	MetricReasonNoTransport   = "no_transport"
	MetricReasonTransportLost = "transport_lost"
)

var (
	MetricSendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricNameSendsTotal,
		Help: "Total commands accepted by Send.",
	})

	MetricRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricNameRetriesTotal,
		Help: "Total echo/reply retransmits issued.",
	})

	MetricFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameFailuresTotal,
			Help: "Total terminal send failures, by reason.",
		},
		[]string{MetricLabelReason},
	)

	MetricDispatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricNameDispatchSeconds,
		Help:    "Time from enqueue to resolution of a sent command.",
		Buckets: prometheus.DefBuckets,
	})
)
