package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolGauges exposes the pool's state to Prometheus. The pool updates
// these from its analytics pass; nothing here holds the pool lock.
type PoolGauges struct {
	CapacityUsed       prometheus.Gauge
	Max                prometheus.Gauge
	ProcessCount       prometheus.Gauge
	GroupCount         prometheus.Gauge
	GlobalWaitlistSize prometheus.Gauge
	GroupWaitlistSize  *prometheus.GaugeVec
	ProcessRSSKB       *prometheus.GaugeVec
	ProcessCPUPercent  *prometheus.GaugeVec
	ProcessSessions    *prometheus.GaugeVec
	SystemLoad1        prometheus.Gauge
	SystemFreeRAMKB    prometheus.Gauge
}

// NewPoolGauges creates and registers the pool gauges on reg
func NewPoolGauges(reg prometheus.Registerer) *PoolGauges {
	g := &PoolGauges{
		CapacityUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "capacity_used",
			Help: "Number of processes counted against the pool budget",
		}),
		Max: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "max_processes",
			Help: "Total process budget across all groups",
		}),
		ProcessCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "process_count",
			Help: "Number of live processes in the pool",
		}),
		GroupCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "group_count",
			Help: "Number of application groups in the pool",
		}),
		GlobalWaitlistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "get_wait_list_size",
			Help: "Number of get requests waiting at the pool level",
		}),
		GroupWaitlistSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "group_get_wait_list_size",
			Help: "Number of get requests waiting per group",
		}, []string{"group"}),
		ProcessRSSKB: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "process_rss_kilobytes",
			Help: "Resident set size per process",
		}, []string{"group", "pid"}),
		ProcessCPUPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "process_cpu_percent",
			Help: "CPU usage per process",
		}, []string{"group", "pid"}),
		ProcessSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "process_sessions",
			Help: "Live sessions per process",
		}, []string{"group", "pid"}),
		SystemLoad1: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "system_load1",
			Help: "Host one-minute load average",
		}),
		SystemFreeRAMKB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "passenger", Name: "system_free_ram_kilobytes",
			Help: "Host available memory",
		}),
	}

	reg.MustRegister(
		g.CapacityUsed, g.Max, g.ProcessCount, g.GroupCount,
		g.GlobalWaitlistSize, g.GroupWaitlistSize,
		g.ProcessRSSKB, g.ProcessCPUPercent, g.ProcessSessions,
		g.SystemLoad1, g.SystemFreeRAMKB,
	)
	return g
}

// ProcessSample is one process's contribution to an analytics pass
type ProcessSample struct {
	Group    string
	PID      int
	RSSKB    int64
	CPU      float64
	Sessions int
}

// UpdateProcesses replaces the per-process gauge series with the given
// samples. Series for processes that disappeared are dropped so dead PIDs
// do not linger in scrapes.
func (g *PoolGauges) UpdateProcesses(samples []ProcessSample) {
	g.ProcessRSSKB.Reset()
	g.ProcessCPUPercent.Reset()
	g.ProcessSessions.Reset()
	for _, s := range samples {
		pid := strconv.Itoa(s.PID)
		if s.RSSKB >= 0 {
			g.ProcessRSSKB.WithLabelValues(s.Group, pid).Set(float64(s.RSSKB))
		}
		if s.CPU >= 0 {
			g.ProcessCPUPercent.WithLabelValues(s.Group, pid).Set(s.CPU)
		}
		g.ProcessSessions.WithLabelValues(s.Group, pid).Set(float64(s.Sessions))
	}
}

// UpdateSystem publishes a host-wide sample
func (g *PoolGauges) UpdateSystem(sm SystemMetrics) {
	g.SystemLoad1.Set(sm.Load1)
	g.SystemFreeRAMKB.Set(float64(sm.FreeRAMKB))
}
