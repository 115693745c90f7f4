package pool

import (
	"time"
)

// wakeupGarbageCollector nudges the GC out of its timed sleep. Safe to
// call with or without the pool lock.
func (p *Pool) wakeupGarbageCollector() {
	select {
	case p.gcWake <- struct{}{}:
	default:
	}
}

// gcLoop runs the garbage collector: wake on the condition signal or on
// timer expiry, collect, compute the next deadline as the minimum of the
// earliest pending idle-expiry and the configured ceiling.
func (p *Pool) gcLoop() {
	defer p.wg.Done()

	for {
		sleep := p.garbageCollect()

		timer := p.clock.NewTimer(sleep)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-p.gcWake:
			timer.Stop()
		case <-timer.Chan():
		}
	}
}

// garbageCollect detaches idle-expired processes and preloaders, and
// returns how long to sleep until the next run
func (p *Pool) garbageCollect() time.Duration {
	p.mu.Lock()
	now := p.clock.Now()
	nextRun := now.Add(p.cfg.GCRunInterval)
	var actions []Callback

	if p.lifeStatus == PoolAlive {
		removed := 0
		for _, g := range p.groups {
			removed += p.garbageCollectGroup(g, now, &nextRun, &actions)
		}
		if removed > 0 {
			p.capacityFreed(&actions)
		}
	}

	p.fullVerifyInvariants()
	sleep := nextRun.Sub(now)
	p.mu.Unlock()
	runAllActions(actions)

	if sleep < time.Second {
		sleep = time.Second
	}
	return sleep
}

// garbageCollectGroup expires one group's idle processes and preloader.
// A process is eligible when it has sat idle past maxIdleTime and the
// group would still hold its minimum afterwards. Caller holds the pool
// lock.
func (p *Pool) garbageCollectGroup(g *Group, now time.Time, nextRun *time.Time, actions *[]Callback) int {
	removed := 0

	if p.maxIdleTime > 0 && g.lifeStatus == GroupAlive {
		candidates := append([]*Process{}, g.enabled.all()...)
		for _, proc := range candidates {
			if !proc.isIdle() {
				continue
			}
			if g.enabledCount() <= g.options.MinProcesses {
				break
			}
			expiry := proc.lastUsed.Add(p.maxIdleTime)
			if now.Before(expiry) {
				maybeUpdateNextRun(nextRun, expiry)
				continue
			}
			p.logger.Info("Garbage collecting idle process",
				"group", g.name,
				"pid", proc.pid,
				"idle", now.Sub(proc.lastUsed),
			)
			g.detachProcess(proc, actions)
			removed++
		}
	}

	if g.preloader != nil && p.cfg.MaxPreloaderIdleTime > 0 {
		expiry := g.preloader.LastUsed().Add(p.cfg.MaxPreloaderIdleTime)
		if now.Before(expiry) {
			maybeUpdateNextRun(nextRun, expiry)
		} else {
			p.logger.Info("Garbage collecting idle preloader", "group", g.name)
			g.closePreloader(actions)
		}
	}
	return removed
}

// maybeUpdateNextRun lowers the GC deadline to candidate if sooner
func maybeUpdateNextRun(nextRun *time.Time, candidate time.Time) {
	if candidate.Before(*nextRun) {
		*nextRun = candidate
	}
}
