package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameSendsTotal    = "ramses_discovery_sends_total"
	MetricNameSkipsTotal    = "ramses_discovery_skips_total"
	MetricNameTimeoutsTotal = "ramses_discovery_timeouts_total"

	MetricLabelCode = "code"
)

var (
	MetricSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameSendsTotal,
			Help: "Number of discovery commands sent because no recent inbound message satisfied the task's interval",
		},
		[]string{MetricLabelCode},
	)

	MetricSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameSkipsTotal,
			Help: "Number of discovery task iterations skipped because a recent inbound message already satisfied the interval",
		},
		[]string{MetricLabelCode},
	)

	MetricTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameTimeoutsTotal,
			Help: "Number of discovery sends that timed out waiting for a reply",
		},
		[]string{MetricLabelCode},
	)
)
