// Package metrics centralizes the Prometheus collectors the rest of
// the kernel core reports against, replacing the teacher's stats
// package — which toggled unsafe-pointer atomic counters on/off via a
// compile-time Stats bool and serialized them through reflect. That
// approach leans on runtime.Rdtsc and unsafe.Pointer tricks that have
// no meaning in this simulated, single-process kernel; Prometheus
// gauges/counters (already used by sched/metrics.go for scheduler
// events) are the idiomatic replacement and compose with any scrape
// tooling instead of a bespoke string dump.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "weenix"

var (
	ProcessesLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "proc",
		Name:      "live_processes",
		Help:      "Number of processes currently allocated (not yet reaped).",
	})

	PageFaultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pagefault",
		Name:      "handled_total",
		Help:      "Page faults successfully resolved.",
	})

	PageFaultsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pagefault",
		Name:      "failed_total",
		Help:      "Page faults that could not be resolved (killed the faulting process with EFAULT).",
	})

	MmobjReclaimsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mmobj",
		Name:      "reclaims_total",
		Help:      "Memory objects reclaimed at refcount zero.",
	})

	VfsOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vfs",
		Name:      "syscalls_total",
		Help:      "vfssyscall do_* calls, labeled by operation name.",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(ProcessesLive, PageFaultsTotal, PageFaultsFailedTotal, MmobjReclaimsTotal, VfsOpsTotal)
}
