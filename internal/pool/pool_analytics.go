package pool

import (
	"github.com/pkmiec/passenger/internal/metrics"
)

// analyticsLoop periodically samples per-process and host metrics.
// Collection runs without the pool lock; only the pid snapshot and the
// merge hold it. Processes found dead are detached.
func (p *Pool) analyticsLoop() {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.cfg.AnalyticsCollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.Chan():
		}
		p.collectAnalytics()
	}
}

// collectAnalytics runs one collection pass
func (p *Pool) collectAnalytics() {
	p.mu.Lock()
	if p.lifeStatus != PoolAlive {
		p.mu.Unlock()
		return
	}
	pids := make([]int, 0, 16)
	for _, g := range p.groups {
		for _, proc := range g.allProcesses() {
			pids = append(pids, proc.pid)
		}
	}
	p.mu.Unlock()

	procMetrics := metrics.CollectProcessMetrics(pids)
	sysMetrics, sysErr := metrics.CollectSystemMetrics()

	var actions []Callback
	var samples []metrics.ProcessSample
	p.mu.Lock()
	if sysErr == nil {
		p.systemMetrics = sysMetrics
	} else {
		p.logger.Debug("System metrics collection failed", "error", sysErr)
	}

	var dead []*Process
	for _, g := range p.groups {
		for _, proc := range g.allProcesses() {
			m, ok := procMetrics[proc.pid]
			if !ok {
				continue
			}
			proc.metrics = m
			if !m.Alive && proc.state != ProcessDetached {
				dead = append(dead, proc)
				continue
			}
			samples = append(samples, metrics.ProcessSample{
				Group:    g.name,
				PID:      proc.pid,
				RSSKB:    m.RSSKB,
				CPU:      m.CPUPercent,
				Sessions: proc.sessionCount,
			})
		}
	}
	for _, proc := range dead {
		p.logger.Warn("Process found dead during analytics collection",
			"group", proc.group.name,
			"pid", proc.pid,
		)
		p.detachProcessLocked(proc, &actions)
	}

	capacityUsed := p.capacityUsedUnlocked()
	maxProcs := p.max
	processCount := 0
	for _, g := range p.groups {
		processCount += g.processCount()
	}
	groupCount := len(p.groups)
	globalWaitlist := len(p.getWaitlist)
	groupWaitlists := make(map[string]int, groupCount)
	for name, g := range p.groups {
		groupWaitlists[name] = len(g.getWaitlist)
	}

	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)

	if p.gauges == nil {
		return
	}
	p.gauges.CapacityUsed.Set(float64(capacityUsed))
	p.gauges.Max.Set(float64(maxProcs))
	p.gauges.ProcessCount.Set(float64(processCount))
	p.gauges.GroupCount.Set(float64(groupCount))
	p.gauges.GlobalWaitlistSize.Set(float64(globalWaitlist))
	p.gauges.GroupWaitlistSize.Reset()
	for name, size := range groupWaitlists {
		p.gauges.GroupWaitlistSize.WithLabelValues(name).Set(float64(size))
	}
	p.gauges.UpdateProcesses(samples)
	if sysErr == nil {
		p.gauges.UpdateSystem(sysMetrics)
	}
}
