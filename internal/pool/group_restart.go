package pool

import (
	"golang.org/x/sys/unix"
)

// RestartMethod selects how a group replaces its processes
type RestartMethod int

const (
	// RestartMethodDefault resolves to rolling
	RestartMethodDefault RestartMethod = iota
	// RestartMethodRolling drains old processes while fresh ones come up
	RestartMethodRolling
	// RestartMethodImmediate detaches old processes right away; long
	// running connections are aborted through the registered callback
	RestartMethodImmediate
)

// String renders the method for logs
func (m RestartMethod) String() string {
	switch m {
	case RestartMethodRolling:
		return "rolling"
	case RestartMethodImmediate:
		return "immediate"
	default:
		return "default"
	}
}

// restart initiates a restart under a new generation. A restart
// requested while one is in flight coalesces with it: the in-flight
// generation bump already covers the newer request. Caller holds the
// pool lock.
func (g *Group) restart(method RestartMethod, actions *[]Callback) {
	if g.lifeStatus != GroupAlive || g.restartInProgress {
		return
	}
	if method == RestartMethodDefault {
		method = RestartMethodRolling
	}

	g.restartInProgress = true
	g.generation++
	oldCount := g.enabledCount()
	g.restartGoal = oldCount
	if g.restartGoal < g.options.MinProcesses {
		g.restartGoal = g.options.MinProcesses
	}

	g.pool.logger.Info("Restart initiated",
		"group", g.name,
		"method", method.String(),
		"generation", g.generation,
		"goal", g.restartGoal,
	)

	// A preloader from the old generation would fork stale code.
	g.closePreloader(actions)

	old := append([]*Process{}, g.enabled.all()...)
	for _, proc := range old {
		switch {
		case method == RestartMethodImmediate:
			g.detachProcess(proc, actions)
		case proc.isIdle():
			// Nothing to drain; skip the disabling stop-over.
			g.detachProcess(proc, actions)
		default:
			g.enabled.remove(proc)
			proc.state = ProcessDisabling
			g.disabling = append(g.disabling, proc)
		}
	}

	g.maybeFinishRestart()
	if g.spawnState != spawnStateNotSpawning {
		if g.restartInProgress {
			g.spawnState = spawnStateRestarting
		}
	} else {
		g.wakeUpSpawnLoop()
	}
	g.pool.capacityFreed(actions)
}

// requestOOBW routes new sessions away from proc until it drains, then
// runs its out-of-band work and puts it back into rotation. Caller holds
// the pool lock.
func (g *Group) requestOOBW(proc *Process, actions *[]Callback) {
	if proc.state != ProcessEnabled || proc.oobwRequested {
		return
	}
	proc.oobwRequested = true
	g.pool.logger.Debug("Out-of-band work requested",
		"group", g.name,
		"pid", proc.pid,
	)
	if proc.isIdle() {
		g.startOOBW(proc, actions)
	}
}

// startOOBW schedules the actual out-of-band work for an idle process.
// Caller holds the pool lock; the work itself runs as a deferred action.
func (g *Group) startOOBW(proc *Process, actions *[]Callback) {
	p := g.pool
	*actions = append(*actions, func() {
		// SIGUSR1 is the out-of-band work trigger the workers understand.
		if err := unix.Kill(proc.pid, unix.SIGUSR1); err != nil {
			p.logger.Warn("Out-of-band work signal failed",
				"group", g.name,
				"pid", proc.pid,
				"error", err,
			)
		}
		p.finishOOBW(g, proc)
	})
}

// finishOOBW re-enables a process after its out-of-band work ran
func (p *Pool) finishOOBW(g *Group, proc *Process) {
	p.mu.Lock()
	var actions []Callback
	if proc.oobwRequested {
		proc.oobwRequested = false
		if proc.state == ProcessEnabled {
			g.enabled.fix(proc)
			g.assignSessionsToWaiters(&actions)
		}
	}
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
}
