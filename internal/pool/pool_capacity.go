package pool

import (
	"golang.org/x/sys/unix"
)

// capacityUsedUnlocked sums every group's charge against the budget:
// enabled, disabling and in-flight spawns. Detached processes are no
// longer counted. Caller holds the pool lock.
func (p *Pool) capacityUsedUnlocked() int {
	used := 0
	for _, g := range p.groups {
		used += g.capacityUsed()
	}
	return used
}

// atFullCapacityUnlocked reports budget exhaustion. Caller holds the
// pool lock.
func (p *Pool) atFullCapacityUnlocked() bool {
	return p.capacityUsedUnlocked() >= p.max
}

// findOldestIdleProcess returns the enabled process with no sessions and
// the oldest last-used time, skipping exclude's processes. A group's
// last process is only eligible when that group has no pending work:
// trashing the sole worker of a group that is actively serving or has
// waiters would thrash. Caller holds the pool lock.
func (p *Pool) findOldestIdleProcess(exclude *Group) *Process {
	var oldest *Process
	for _, g := range p.groups {
		if g == exclude {
			continue
		}
		for _, proc := range g.enabled.all() {
			if !proc.isIdle() {
				continue
			}
			if g.enabledCount() == 1 && (len(g.getWaitlist) > 0 || g.hasActiveSessions()) {
				continue
			}
			if oldest == nil || proc.lastUsed.Before(oldest.lastUsed) {
				oldest = proc
			}
		}
	}
	return oldest
}

// hasActiveSessions reports whether any of the group's serving processes
// holds a session. Caller holds the pool lock.
func (g *Group) hasActiveSessions() bool {
	for _, proc := range g.enabled.all() {
		if !proc.isIdle() {
			return true
		}
	}
	for _, proc := range g.disabling {
		if !proc.isIdle() {
			return true
		}
	}
	return false
}

// findBestProcessToTrash picks the victim for forced capacity
// reclamation, preferring an idle process in a group with no waiters and
// more than its minimum, then any oldest idle process elsewhere. There is
// no shutting-down tier: a group that leaves service detaches all of its
// processes at once and drops out of the map, so a shutting-down group
// with serving processes cannot exist here. Caller holds the pool lock.
func (p *Pool) findBestProcessToTrash(exclude *Group) *Process {
	var surplus *Process
	for _, g := range p.groups {
		if g == exclude || len(g.getWaitlist) > 0 || g.enabledCount() <= g.options.MinProcesses {
			continue
		}
		for _, proc := range g.enabled.all() {
			if !proc.isIdle() {
				continue
			}
			if surplus == nil || proc.lastUsed.Before(surplus.lastUsed) {
				surplus = proc
			}
		}
	}
	if surplus != nil {
		return surplus
	}
	return p.findOldestIdleProcess(exclude)
}

// forceFreeCapacity detaches a victim process so the requester can use
// its budget slot. The victim's group keeps the rest of its processes;
// the freed capacity is deliberately not offered to the global wait list
// here, because the caller is about to consume it. Caller holds the pool
// lock.
func (p *Pool) forceFreeCapacity(exclude *Group, actions *[]Callback) *Process {
	victim := p.findBestProcessToTrash(exclude)
	if victim == nil {
		return nil
	}
	p.logger.Info("Trashing process to free capacity",
		"group", victim.group.name,
		"pid", victim.pid,
	)
	victim.group.detachProcess(victim, actions)
	p.maybeRemoveEmptyGroup(victim.group, actions)
	return victim
}

// capacityFreed is the capacity event: whenever a process is removed, a
// group is detached or the budget is raised, the global wait list is
// drained head-first and under-provisioned groups get their spawn loops
// kicked. Caller holds the pool lock.
func (p *Pool) capacityFreed(actions *[]Callback) {
	if p.overcommitted && p.capacityUsedUnlocked() <= p.max {
		p.overcommitted = false
	}
	p.assignSessionsToGetWaiters(actions)
	p.possiblySpawnMoreProcessesForExistingGroups()
	p.wakeupGarbageCollector()
}

// assignSessionsToGetWaiters re-routes pool-level waiters head-first.
// Draining stops at the first entry that still cannot be satisfied, so
// FIFO order is preserved. Caller holds the pool lock.
func (p *Pool) assignSessionsToGetWaiters(actions *[]Callback) {
	for len(p.getWaitlist) > 0 {
		w := p.getWaitlist[0]
		name := w.options.GroupName()
		if p.groups[name] == nil && p.atFullCapacityUnlocked() && p.findBestProcessToTrash(nil) == nil {
			return
		}
		p.getWaitlist = p.getWaitlist[1:]
		p.routeWaiterLocked(w, actions)
	}
}

// routeWaiterLocked re-routes one pool-level waiter, preserving its
// enqueue time and dwell timer. Caller holds the pool lock.
func (p *Pool) routeWaiterLocked(w *getWaiter, actions *[]Callback) {
	if p.lifeStatus != PoolAlive {
		w.satisfy(nil, ErrPoolShuttingDown, actions)
		return
	}

	name := w.options.GroupName()
	g := p.groups[name]
	if g == nil {
		if p.atFullCapacityUnlocked() {
			if victim := p.forceFreeCapacity(nil, actions); victim == nil {
				// Still stuck; put it back at the head.
				p.getWaitlist = append([]*getWaiter{w}, p.getWaitlist...)
				return
			}
		}
		g = p.createGroup(w.options, actions)
	}

	if proc := g.routeSession(w.options); proc != nil {
		session := proc.newSession(p, p.clock.Now())
		g.enabled.fix(proc)
		w.satisfy(session, nil, actions)
		return
	}
	g.enqueueWaiter(w, actions)
	if !g.wakeUpSpawnLoop() && p.atFullCapacityUnlocked() {
		if victim := p.forceFreeCapacity(g, actions); victim != nil {
			g.wakeUpSpawnLoop()
		}
	}
}

// possiblySpawnMoreProcessesForExistingGroups kicks the spawn loop of
// every group that is below its minimum or has unserved waiters. Freed
// capacity should benefit groups that were starved by the budget, not
// only pool-level waiters. Caller holds the pool lock.
func (p *Pool) possiblySpawnMoreProcessesForExistingGroups() {
	for _, g := range p.groups {
		if g.lifeStatus != GroupAlive {
			continue
		}
		if g.shouldSpawn() {
			g.wakeUpSpawnLoop()
		}
	}
}

// killProcess sends SIGKILL, ignoring errors from already-dead targets
func killProcess(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)
}
