package pool

import (
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/pkmiec/passenger/internal/spawningkit"
)

// GroupLifeStatus is the lifecycle state of a group
type GroupLifeStatus int

const (
	// GroupAlive serves requests and spawns processes
	GroupAlive GroupLifeStatus = iota
	// GroupShuttingDown no longer serves; detached processes are still
	// being terminated
	GroupShuttingDown
	// GroupShutDown has no processes left at all
	GroupShutDown
)

// String renders the status for logs and dumps
func (s GroupLifeStatus) String() string {
	switch s {
	case GroupAlive:
		return "alive"
	case GroupShuttingDown:
		return "shutting_down"
	case GroupShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

// spawnState is the group's spawn-loop state machine
type spawnState int

const (
	spawnStateNotSpawning spawnState = iota
	spawnStateSpawning
	spawnStateRestarting
)

// Group is a cohort of worker processes sharing an Options-derived
// identity. It owns the spawn loop, the restart and disable state
// machines, and a FIFO wait list of get requests specific to this
// application. Every field is guarded by the pool mutex.
type Group struct {
	pool *Pool
	// name is the Options-derived identity key
	name string
	// secret authenticates administrative operations addressed by secret
	secret string
	// options is the template used for spawning
	options Options

	lifeStatus GroupLifeStatus
	// generation counts restarts; processes carry the generation they
	// were spawned under
	generation int

	// enabled holds routable processes ordered by load
	enabled processHeap
	// disabling processes keep their sessions but take no new ones
	disabling []*Process
	// detached processes are being terminated
	detached []*Process

	// getWaitlist is the FIFO of get requests waiting for capacity
	getWaitlist []*getWaiter
	// disableWaitlist holds callbacks pending on draining processes
	disableWaitlist []disableWaiter

	spawnState            spawnState
	processesBeingSpawned int

	// restartInProgress coalesces concurrent restart requests
	restartInProgress bool
	// restartGoal is how many current-generation processes a restart
	// should bring up before it counts as complete
	restartGoal int

	preloader spawningkit.Preloader

	// lastRestartFileMtime is the last seen mtime of the restart sentinel
	lastRestartFileMtime int64

	detachedCheckerActive bool
}

// disableWaiter pairs a draining process with its completion callback
type disableWaiter struct {
	process  *Process
	callback DisableCallback
}

// DisableResult is the outcome of a disable request
type DisableResult int

const (
	// DisableResultSuccess means the process drained and is disabled
	DisableResultSuccess DisableResult = iota
	// DisableResultCanceled means the process died or was detached before
	// draining
	DisableResultCanceled
	// DisableResultError means the process could not be disabled, for
	// example because it was already detached
	DisableResultError
)

// String renders the result for logs
func (r DisableResult) String() string {
	switch r {
	case DisableResultSuccess:
		return "success"
	case DisableResultCanceled:
		return "canceled"
	case DisableResultError:
		return "error"
	default:
		return "unknown"
	}
}

// DisableCallback delivers the outcome of a disable request
type DisableCallback func(process *Process, result DisableResult)

// newGroup creates a group for options. Caller holds the pool lock.
func newGroup(p *Pool, options Options) *Group {
	g := &Group{
		pool:       p,
		name:       options.GroupName(),
		secret:     uuid.NewString(),
		options:    options,
		lifeStatus: GroupAlive,
	}
	// Record the sentinel baseline so a stale restart.txt left on disk
	// does not trigger a restart on the very first request.
	if fi, err := os.Stat(options.RestartFilePath()); err == nil {
		g.lastRestartFileMtime = fi.ModTime().UnixNano()
	}
	return g
}

// Name returns the group's identity key
func (g *Group) Name() string { return g.name }

// Secret returns the group's administrative secret
func (g *Group) Secret() string { return g.secret }

// enabledCount is the number of routable processes
func (g *Group) enabledCount() int { return g.enabled.Len() }

// processCount counts serving process handles: enabled plus disabling
func (g *Group) processCount() int {
	return g.enabled.Len() + len(g.disabling)
}

// capacityUsed is this group's charge against the pool budget
func (g *Group) capacityUsed() int {
	return g.enabled.Len() + len(g.disabling) + g.processesBeingSpawned
}

// currentGenCount counts enabled processes of the current generation
// plus in-flight spawns, which always target the current generation
func (g *Group) currentGenCount() int {
	n := g.processesBeingSpawned
	for _, proc := range g.enabled.all() {
		if proc.generation == g.generation {
			n++
		}
	}
	return n
}

// enabledHasCapacity reports whether any enabled process can take a
// session right now
func (g *Group) enabledHasCapacity() bool {
	if top := g.enabled.top(); top != nil && top.canAccept() {
		return true
	}
	for _, proc := range g.enabled.all() {
		if proc.canAccept() {
			return true
		}
	}
	return false
}

// routeSession picks the process a new session should land on: the
// sticky match when the request carries one, otherwise the least-loaded
// enabled process, ties to the least recently used.
func (g *Group) routeSession(o Options) *Process {
	if o.StickySessionID != 0 {
		for _, proc := range g.enabled.all() {
			if proc.stickySessionID == o.StickySessionID && proc.canAccept() {
				return proc
			}
		}
	}
	if top := g.enabled.top(); top != nil && top.canAccept() {
		return top
	}
	var best *Process
	for _, proc := range g.enabled.all() {
		if !proc.canAccept() {
			continue
		}
		if best == nil || proc.busyness() < best.busyness() ||
			(proc.busyness() == best.busyness() && proc.lastUsed.Before(best.lastUsed)) {
			best = proc
		}
	}
	return best
}

// get routes one request: assign a session synchronously when an enabled
// process has room, otherwise enqueue and make sure more processes are
// on the way. Caller holds the pool lock; the callback is only ever run
// through actions.
func (g *Group) get(o Options, callback GetCallback, actions *[]Callback) {
	if g.lifeStatus != GroupAlive {
		cb := callback
		*actions = append(*actions, func() { cb(nil, ErrGroupDetached) })
		return
	}

	if proc := g.routeSession(o); proc != nil {
		g.assignSession(proc, o, callback, actions)
		return
	}

	if o.MaxRequestQueueSize > 0 && len(g.getWaitlist) >= o.MaxRequestQueueSize {
		cb := callback
		queueErr := &RequestQueueFullError{GroupName: g.name, Size: o.MaxRequestQueueSize}
		*actions = append(*actions, func() { cb(nil, queueErr) })
		return
	}

	w := g.pool.newWaiter(o, callback)
	g.getWaitlist = append(g.getWaitlist, w)
	g.pool.logger.Debug("Request queued on group wait list",
		"group", g.name,
		"queue_size", len(g.getWaitlist),
	)

	if !g.wakeUpSpawnLoop() && g.pool.atFullCapacityUnlocked() {
		// The pool budget blocks our spawn; try to reclaim capacity from
		// an idle process elsewhere.
		if victim := g.pool.forceFreeCapacity(g, actions); victim != nil {
			g.wakeUpSpawnLoop()
		}
	}
}

// enqueueWaiter re-queues an existing waiter on this group, preserving
// its original enqueue time and dwell timer. Used when a pool-level
// waiter's group comes into existence.
func (g *Group) enqueueWaiter(w *getWaiter, actions *[]Callback) {
	o := w.options
	if o.MaxRequestQueueSize > 0 && len(g.getWaitlist) >= o.MaxRequestQueueSize {
		w.satisfy(nil, &RequestQueueFullError{GroupName: g.name, Size: o.MaxRequestQueueSize}, actions)
		return
	}
	g.getWaitlist = append(g.getWaitlist, w)
}

// assignSession hands proc to the caller and reorders the heap
func (g *Group) assignSession(proc *Process, o Options, callback GetCallback, actions *[]Callback) {
	session := proc.newSession(g.pool, g.pool.clock.Now())
	g.enabled.fix(proc)
	cb := callback
	*actions = append(*actions, func() { cb(session, nil) })
}

// assignSessionsToWaiters walks the wait list head-first, assigning
// sessions until the list empties or no enabled process has room
func (g *Group) assignSessionsToWaiters(actions *[]Callback) {
	for len(g.getWaitlist) > 0 {
		w := g.getWaitlist[0]
		proc := g.routeSession(w.options)
		if proc == nil {
			return
		}
		g.getWaitlist = g.getWaitlist[1:]
		session := proc.newSession(g.pool, g.pool.clock.Now())
		g.enabled.fix(proc)
		w.satisfy(session, nil, actions)
	}
}

// attach adopts a freshly spawned process into the enabled set and
// drains as much of the wait list as it can serve
func (g *Group) attach(proc *Process, actions *[]Callback) {
	g.enabled.add(proc)
	g.pool.logger.Info("Process attached",
		"group", g.name,
		"pid", proc.pid,
		"gupid", proc.gupid,
		"generation", proc.generation,
	)
	g.pool.runHookScript(actions, "attached_process", map[string]string{
		"group_name": g.name,
		"pid":        strconv.Itoa(proc.pid),
		"gupid":      proc.gupid,
	})
	g.assignSessionsToWaiters(actions)
}

// onSessionClosed is the accounting path for every session close
func (g *Group) onSessionClosed(proc *Process, actions *[]Callback) {
	proc.sessionClosed(g.pool.clock.Now())

	detachedNow := false
	switch proc.state {
	case ProcessEnabled:
		g.enabled.fix(proc)
		if proc.oobwRequested && proc.isIdle() {
			g.startOOBW(proc, actions)
		}
	case ProcessDisabling:
		if proc.isIdle() {
			if proc.generation < g.generation {
				// Restart leftover: it was draining to die.
				g.detachProcess(proc, actions)
				detachedNow = true
			} else {
				g.finishDisable(proc, DisableResultSuccess, actions)
			}
		}
	case ProcessDetached:
		// The detached-process checker terminates it now that it is idle.
	}

	g.assignSessionsToWaiters(actions)

	if detachedNow {
		g.pool.maybeRemoveEmptyGroup(g, actions)
		g.pool.capacityFreed(actions)
	} else if len(g.pool.getWaitlist) > 0 {
		// A newly idle process may be trashable to serve pool-level
		// waiters.
		g.pool.assignSessionsToGetWaiters(actions)
	}
}

// disable asks for proc to stop taking new sessions. The callback fires
// with success once the process drains, canceled if it dies or is
// detached first, error if it is already detached.
func (g *Group) disable(proc *Process, callback DisableCallback, actions *[]Callback) {
	switch proc.state {
	case ProcessDetached:
		cb := callback
		*actions = append(*actions, func() { cb(proc, DisableResultError) })
	case ProcessDisabling:
		if proc.isIdle() {
			// Already drained: nothing left to wait for.
			cb := callback
			*actions = append(*actions, func() { cb(proc, DisableResultSuccess) })
		} else {
			g.disableWaitlist = append(g.disableWaitlist, disableWaiter{process: proc, callback: callback})
		}
	case ProcessEnabled:
		g.enabled.remove(proc)
		proc.state = ProcessDisabling
		g.disabling = append(g.disabling, proc)
		if proc.isIdle() {
			cb := callback
			*actions = append(*actions, func() { cb(proc, DisableResultSuccess) })
		} else {
			g.disableWaitlist = append(g.disableWaitlist, disableWaiter{process: proc, callback: callback})
		}
		// The enabled set shrank; waiting requests may now need a spawn.
		g.wakeUpSpawnLoop()
	}
}

// finishDisable fires pending disable callbacks for proc
func (g *Group) finishDisable(proc *Process, result DisableResult, actions *[]Callback) {
	kept := g.disableWaitlist[:0]
	for _, dw := range g.disableWaitlist {
		if dw.process == proc {
			cb := dw.callback
			res := result
			*actions = append(*actions, func() { cb(proc, res) })
		} else {
			kept = append(kept, dw)
		}
	}
	g.disableWaitlist = kept
}

// detachProcess removes proc from the serving sets and schedules OS
// termination after its current sessions end. Idempotent. Group-local:
// the caller is responsible for pool-level capacity events.
func (g *Group) detachProcess(proc *Process, actions *[]Callback) bool {
	switch proc.state {
	case ProcessDetached:
		return false
	case ProcessEnabled:
		g.enabled.remove(proc)
	case ProcessDisabling:
		g.disabling = removeProcess(g.disabling, proc)
		g.finishDisable(proc, DisableResultCanceled, actions)
	}

	proc.state = ProcessDetached
	proc.detachedAt = g.pool.clock.Now()
	g.detached = append(g.detached, proc)

	g.pool.logger.Info("Process detached",
		"group", g.name,
		"pid", proc.pid,
		"gupid", proc.gupid,
		"sessions", proc.sessionCount,
	)

	if proc.sessionCount > 0 && g.pool.abortLongRunningConnectionsCallback != nil {
		cb := g.pool.abortLongRunningConnectionsCallback
		*actions = append(*actions, func() { cb(proc) })
	}
	g.pool.runHookScript(actions, "detached_process", map[string]string{
		"group_name": g.name,
		"pid":        strconv.Itoa(proc.pid),
		"gupid":      proc.gupid,
	})

	g.startDetachedChecker()
	g.maybeFinishRestart()
	return true
}

// shutdown takes the group out of service: wait lists are flushed with
// waitErr and every process is detached. The pool removes the group from
// its map; termination of the detached processes continues in the
// background.
func (g *Group) shutdown(waitErr error, actions *[]Callback) {
	if g.lifeStatus != GroupAlive {
		return
	}
	g.lifeStatus = GroupShuttingDown

	flushWaiters(g.getWaitlist, waitErr, actions)
	g.getWaitlist = nil

	for _, proc := range append(append([]*Process{}, g.enabled.all()...), g.disabling...) {
		g.detachProcess(proc, actions)
	}
	g.closePreloader(actions)

	if len(g.detached) == 0 {
		g.lifeStatus = GroupShutDown
	}
}

// closePreloader schedules the preloader's shutdown, if one is held
func (g *Group) closePreloader(actions *[]Callback) {
	if g.preloader == nil {
		return
	}
	pre := g.preloader
	g.preloader = nil
	logger := g.pool.logger
	name := g.name
	*actions = append(*actions, func() {
		if err := pre.Close(); err != nil {
			logger.Warn("Preloader shutdown failed", "group", name, "error", err)
		}
	})
}

// SetPreloader records the group's preloader handle so the garbage
// collector can expire it when idle
func (g *Group) SetPreloader(pre spawningkit.Preloader) {
	g.pool.mu.Lock()
	defer g.pool.mu.Unlock()
	g.preloader = pre
}

// removeProcess deletes proc from a slice by identity, preserving order
func removeProcess(procs []*Process, proc *Process) []*Process {
	for i, cand := range procs {
		if cand == proc {
			return append(procs[:i], procs[i+1:]...)
		}
	}
	return procs
}
