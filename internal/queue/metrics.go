package queue

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

const (
	MetricNameDepth = "ramses_send_queue_depth"
	MetricLabelPriority = "priority"
)

var MetricDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricNameDepth,
		Help: "Current occupancy of the priority send queue, by priority",
	},
	[]string{MetricLabelPriority},
)

// reportDepth refreshes the depth gauge for every known priority tier. Called
// with q.mu already held by the caller.
func (q *Queue) reportDepth() {
	counts := make(map[protocol.Priority]int, 4)
	for _, e := range q.h {
		counts[e.Priority]++
	}
	for _, p := range []protocol.Priority{protocol.ASAP, protocol.HIGH, protocol.DEFAULT, protocol.LOW} {
		MetricDepth.WithLabelValues(priorityLabel(p)).Set(float64(counts[p]))
	}
}

func priorityLabel(p protocol.Priority) string {
	if s := p.String(); s != "UNKNOWN" {
		return s
	}
	return strconv.Itoa(int(p))
}
