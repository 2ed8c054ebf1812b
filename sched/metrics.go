package sched

import "github.com/prometheus/client_golang/prometheus"

var (
	switchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "weenix",
		Subsystem: "sched",
		Name:      "switches_total",
		Help:      "Number of times the CPU token changed hands.",
	})
	wakeupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "weenix",
		Subsystem: "sched",
		Name:      "wakeups_total",
		Help:      "Number of threads moved from a wait queue to the run queue.",
	})
)

func init() {
	prometheus.MustRegister(switchesTotal, wakeupsTotal)
}
