package pool

import (
	"fmt"
)

// fullVerifyInvariants re-checks the pool's structural invariants when
// self-checking is enabled. A violation is a programming error that
// would otherwise corrupt state silently, so it aborts the process.
// Caller holds the pool lock.
func (p *Pool) fullVerifyInvariants() {
	if !p.selfChecking {
		return
	}
	p.verifyInvariants()
	p.verifyExpensiveInvariants()
}

// verifyInvariants checks the cheap pool-level invariants. Caller holds
// the pool lock.
func (p *Pool) verifyInvariants() {
	if p.lifeStatus == PoolAlive && !p.overcommitted && p.capacityUsedUnlocked() > p.max {
		invariantViolation("capacity used %d exceeds max %d", p.capacityUsedUnlocked(), p.max)
	}
	if len(p.getWaitlist) > 0 && !p.atFullCapacityUnlocked() {
		invariantViolation("pool wait list has %d entries but the pool is not at full capacity", len(p.getWaitlist))
	}
	for _, w := range p.getWaitlist {
		if _, exists := p.groups[w.options.GroupName()]; exists {
			invariantViolation("pool wait list entry for existing group %s", w.options.GroupName())
		}
	}
}

// verifyExpensiveInvariants walks every process checking ownership and
// session accounting. Caller holds the pool lock.
func (p *Pool) verifyExpensiveInvariants() {
	for name, g := range p.groups {
		if g.name != name {
			invariantViolation("group %s registered under name %s", g.name, name)
		}
		if g.lifeStatus != GroupAlive {
			// A group leaving service detaches everything and drops out of
			// the map in the same critical section.
			invariantViolation("%s group %s still in the pool map", g.lifeStatus, name)
		}
		if g.processCount() == 0 && g.processesBeingSpawned == 0 &&
			g.spawnState == spawnStateNotSpawning && !g.restartInProgress &&
			len(g.getWaitlist) == 0 && len(g.detached) > 0 {
			invariantViolation("group %s has only detached processes and no pending work but is still in the pool map", name)
		}
		for _, proc := range g.allProcesses() {
			if proc.group != g {
				invariantViolation("process %s back-references group %s instead of %s",
					proc.gupid, proc.group.name, g.name)
			}
			if proc.sessionCount < 0 {
				invariantViolation("process %s has negative session count %d", proc.gupid, proc.sessionCount)
			}
			if proc.concurrency > 0 && proc.sessionCount > proc.concurrency {
				invariantViolation("process %s has %d sessions over concurrency %d",
					proc.gupid, proc.sessionCount, proc.concurrency)
			}
			if proc.sessionsStarted-proc.processed != int64(proc.sessionCount) {
				invariantViolation("process %s session accounting broken: started %d, completed %d, live %d",
					proc.gupid, proc.sessionsStarted, proc.processed, proc.sessionCount)
			}
		}
		for _, proc := range g.enabled.all() {
			if proc.state != ProcessEnabled {
				invariantViolation("process %s in enabled set with state %s", proc.gupid, proc.state)
			}
		}
		for _, proc := range g.disabling {
			if proc.state != ProcessDisabling {
				invariantViolation("process %s in disabling set with state %s", proc.gupid, proc.state)
			}
		}
		for _, proc := range g.detached {
			if proc.state != ProcessDetached {
				invariantViolation("process %s in detached set with state %s", proc.gupid, proc.state)
			}
		}
	}
}

// invariantViolation aborts: continuing would serve requests from
// corrupted state
func invariantViolation(format string, args ...any) {
	panic(fmt.Sprintf("internal invariant violation: "+format, args...))
}
