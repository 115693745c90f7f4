package pool

import (
	"golang.org/x/sys/unix"
)

// startDetachedChecker makes sure a checker goroutine is sweeping this
// group's detached processes. Caller holds the pool lock.
func (g *Group) startDetachedChecker() {
	if g.detachedCheckerActive || len(g.detached) == 0 {
		return
	}
	g.detachedCheckerActive = true
	g.pool.wg.Add(1)
	go g.detachedProcessesChecker()
}

// detachedProcessesChecker terminates detached processes: once a process
// has no sessions left it gets SIGTERM, escalating to SIGKILL after the
// grace period. Dead processes are dropped from the group. The checker
// exits when the detached list empties; shutdown interrupts it and the
// pool's final sweep takes over the killing.
func (g *Group) detachedProcessesChecker() {
	p := g.pool
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.cfg.DetachedProcessCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.mu.Lock()
			g.detachedCheckerActive = false
			p.mu.Unlock()
			return
		case <-ticker.Chan():
		}

		p.mu.Lock()
		done := g.sweepDetachedProcesses()
		if done {
			g.detachedCheckerActive = false
			if g.lifeStatus == GroupShuttingDown {
				g.lifeStatus = GroupShutDown
				p.pruneShutdownGroup(g)
			}
		}
		p.mu.Unlock()

		if done {
			return
		}
	}
}

// sweepDetachedProcesses advances termination for every detached process
// and reports whether the list is empty. Caller holds the pool lock.
func (g *Group) sweepDetachedProcesses() bool {
	now := g.pool.clock.Now()
	kept := g.detached[:0]
	for _, proc := range g.detached {
		if !proc.osAlive() {
			g.pool.logger.Debug("Detached process gone",
				"group", g.name,
				"pid", proc.pid,
			)
			continue
		}
		if proc.sessionCount > 0 {
			kept = append(kept, proc)
			continue
		}
		switch {
		case proc.termSentAt.IsZero():
			g.pool.logger.Info("Terminating detached process",
				"group", g.name,
				"pid", proc.pid,
			)
			_ = unix.Kill(proc.pid, unix.SIGTERM)
			proc.termSentAt = now
			kept = append(kept, proc)
		case now.Sub(proc.termSentAt) >= g.pool.cfg.DetachedProcessKillGracePeriod:
			g.pool.logger.Warn("Detached process ignored SIGTERM, killing it",
				"group", g.name,
				"pid", proc.pid,
			)
			_ = unix.Kill(proc.pid, unix.SIGKILL)
			kept = append(kept, proc)
		default:
			kept = append(kept, proc)
		}
	}
	for i := len(kept); i < len(g.detached); i++ {
		g.detached[i] = nil
	}
	g.detached = kept
	return len(g.detached) == 0
}
