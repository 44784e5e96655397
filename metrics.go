package sproc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics tracks connection and call activity. Opens and closes should stay
// 1:1 over time; a growing gap means a leaked handle.
type metrics struct {
	opens   prometheus.Counter
	closes  prometheus.Counter
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newMetrics(stats prometheus.Registerer) *metrics {
	opens := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sproc_connection_opens",
		Help: "Number of database connections opened.",
	})
	closes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sproc_connection_closes",
		Help: "Number of database connections closed.",
	})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sproc_calls",
		Help: "Number of stored procedure calls, labeled by procedure and result.",
	}, []string{"procedure", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sproc_call_latency",
		Help:    "Stored procedure call latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"procedure"})
	stats.MustRegister(opens, closes, calls, latency)

	return &metrics{opens: opens, closes: closes, calls: calls, latency: latency}
}
