package pool

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pkmiec/passenger/internal/config"
	"github.com/pkmiec/passenger/internal/hooks"
	"github.com/pkmiec/passenger/internal/metrics"
	"github.com/pkmiec/passenger/internal/spawningkit"
)

// PoolLifeStatus is the lifecycle state of the pool
type PoolLifeStatus int

const (
	// PoolAlive accepts and serves get requests
	PoolAlive PoolLifeStatus = iota
	// PoolPreparedForShutdown accepts no new gets; wait lists are flushed
	// and groups are draining
	PoolPreparedForShutdown
	// PoolShuttingDown is tearing down background work
	PoolShuttingDown
	// PoolShutDown has joined every thread and killed every child
	PoolShutDown
)

// String renders the status for logs and dumps
func (s PoolLifeStatus) String() string {
	switch s {
	case PoolAlive:
		return "alive"
	case PoolPreparedForShutdown:
		return "prepared_for_shutdown"
	case PoolShuttingDown:
		return "shutting_down"
	case PoolShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

// Config carries the pool's collaborators and tunables
type Config struct {
	// Pool holds sizing and timing knobs
	Pool config.PoolConfig
	// Spawner materialises worker processes; required
	Spawner spawningkit.Spawner
	// Logger is the structured log sink; required
	Logger *slog.Logger
	// Clock drives all idle, GC and queue-timeout arithmetic; defaults to
	// the real clock
	Clock clockwork.Clock
	// Hooks runs hook scripts on process attach and detach; optional
	Hooks *hooks.Runner
	// Gauges receives analytics samples; optional
	Gauges *metrics.PoolGauges
	// AbortLongRunningConnections is invoked for processes detached while
	// still holding sessions, so the front end can sever keepalives
	AbortLongRunningConnections func(*Process)
}

// Pool is the global capacity manager and router. It owns every Group,
// which owns every Process, which owns every Session; back-references
// point the other way and never own anything.
//
// A single pool-wide mutex guards the group map and all group and
// process state. The lock is released in exactly two situations: around
// the blocking call into the spawning kit, and around user callbacks,
// which are accumulated as post-lock actions during critical sections
// and run after release in insertion order.
type Pool struct {
	mu sync.Mutex

	max          int
	maxIdleTime  time.Duration
	selfChecking bool
	lifeStatus   PoolLifeStatus
	// overcommitted records that max was lowered below the live process
	// count; no eviction happens, admission just waits for the count to
	// fall naturally
	overcommitted bool

	// groups maps group name to group; ownership lives here
	groups map[string]*Group

	// getWaitlist holds requests that cannot be routed because the pool
	// is at full capacity and their group does not exist. Entries whose
	// group exists wait on the group instead.
	getWaitlist []*getWaiter

	// shutdownGroups keeps groups that left the map while still owning
	// detached processes, so shutdown can finish the killing
	shutdownGroups []*Group

	cfg     config.PoolConfig
	clock   clockwork.Clock
	spawner spawningkit.Spawner
	logger  *slog.Logger
	hooks   *hooks.Runner
	gauges  *metrics.PoolGauges

	abortLongRunningConnectionsCallback func(*Process)

	// systemMetrics is the latest host-wide analytics sample
	systemMetrics metrics.SystemMetrics

	// gcWake nudges the garbage collector out of its timed sleep
	gcWake chan struct{}

	// restartFlight coalesces concurrent restart-sentinel polls per group
	restartFlight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	// wg tracks interruptable background work: spawn loops, GC,
	// analytics, detached-process checkers
	wg sync.WaitGroup
	// cleanupWG tracks non-interruptable cleanup, joined without being
	// interrupted
	cleanupWG sync.WaitGroup
}

// New creates a pool and starts its garbage collection and analytics
// tasks. Call Destroy to tear it down.
func New(cfg Config) (*Pool, error) {
	if cfg.Spawner == nil {
		return nil, trace.BadParameter("pool requires a spawner")
	}
	if cfg.Logger == nil {
		return nil, trace.BadParameter("pool requires a logger")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Pool.Max <= 0 {
		cfg.Pool.Max = config.DefaultMax
	}
	if cfg.Pool.GCRunInterval <= 0 {
		cfg.Pool.GCRunInterval = config.DefaultGCRunInterval
	}
	if cfg.Pool.DetachedProcessCheckInterval <= 0 {
		cfg.Pool.DetachedProcessCheckInterval = config.DefaultDetachedProcessCheckInterval
	}
	if cfg.Pool.DetachedProcessKillGracePeriod <= 0 {
		cfg.Pool.DetachedProcessKillGracePeriod = config.DefaultDetachedProcessKillGracePeriod
	}
	if cfg.Pool.AnalyticsCollectionInterval <= 0 {
		cfg.Pool.AnalyticsCollectionInterval = config.DefaultAnalyticsCollectionInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		max:          cfg.Pool.Max,
		maxIdleTime:  cfg.Pool.MaxIdleTime,
		selfChecking: cfg.Pool.SelfChecking,
		lifeStatus:   PoolAlive,
		groups:       make(map[string]*Group),
		cfg:          cfg.Pool,
		clock:        cfg.Clock,
		spawner:      cfg.Spawner,
		logger:       cfg.Logger.With("component", "pool"),
		hooks:        cfg.Hooks,
		gauges:       cfg.Gauges,

		abortLongRunningConnectionsCallback: cfg.AbortLongRunningConnections,

		gcWake: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(2)
	go p.gcLoop()
	go p.analyticsLoop()
	return p, nil
}

// newWaiter creates a wait-list entry and arms its dwell timer
func (p *Pool) newWaiter(o Options, callback GetCallback) *getWaiter {
	w := &getWaiter{
		options:  o,
		callback: callback,
		queuedAt: p.clock.Now(),
	}
	if o.MaxRequestQueueTime > 0 {
		w.timer = p.clock.AfterFunc(o.MaxRequestQueueTime, func() {
			p.expireWaiter(w)
		})
	}
	return w
}

// expireWaiter fails w with a queue timeout if it is still waiting
func (p *Pool) expireWaiter(w *getWaiter) {
	p.mu.Lock()
	var actions []Callback

	if list, ok := removeWaiter(p.getWaitlist, w); ok {
		p.getWaitlist = list
		w.satisfy(nil, &RequestQueueTimeoutError{Limit: w.options.MaxRequestQueueTime}, &actions)
	} else if g := p.groups[w.options.GroupName()]; g != nil {
		if list, ok := removeWaiter(g.getWaitlist, w); ok {
			g.getWaitlist = list
			w.satisfy(nil, &RequestQueueTimeoutError{GroupName: g.name, Limit: w.options.MaxRequestQueueTime}, &actions)
			p.maybeRemoveEmptyGroup(g, &actions)
		}
	}

	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
}

// AsyncGet routes a get request. The callback is invoked exactly once,
// with either a session or an error, never while the pool lock is held,
// and possibly on another goroutine.
func (p *Pool) AsyncGet(options Options, callback GetCallback) {
	o := options.withDefaults()
	p.pollRestartFile(o)

	p.mu.Lock()
	var actions []Callback
	p.asyncGetLocked(o, callback, &actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
}

// asyncGetLocked is the routing core shared by AsyncGet and the global
// wait-list drain. Caller holds the pool lock.
func (p *Pool) asyncGetLocked(o Options, callback GetCallback, actions *[]Callback) {
	if p.lifeStatus != PoolAlive {
		cb := callback
		*actions = append(*actions, func() { cb(nil, ErrPoolShuttingDown) })
		return
	}

	name := o.GroupName()
	if g := p.groups[name]; g != nil {
		g.get(o, callback, actions)
		return
	}

	if p.atFullCapacityUnlocked() {
		if victim := p.forceFreeCapacity(nil, actions); victim == nil {
			// Out of capacity with nothing to trash: park the request at
			// the pool level until capacity frees elsewhere.
			if o.MaxRequestQueueSize > 0 && len(p.getWaitlist) >= o.MaxRequestQueueSize {
				cb := callback
				queueErr := &RequestQueueFullError{Size: o.MaxRequestQueueSize}
				*actions = append(*actions, func() { cb(nil, queueErr) })
				return
			}
			w := p.newWaiter(o, callback)
			p.getWaitlist = append(p.getWaitlist, w)
			p.logger.Debug("Request queued on pool wait list",
				"group", name,
				"queue_size", len(p.getWaitlist),
			)
			return
		}
	}

	g := p.createGroup(o, actions)
	g.get(o, callback, actions)
}

// Get is the blocking variant of AsyncGet. Cancelling ctx abandons the
// ticket: the caller gets ErrGetAborted, and a session that arrives
// afterward is released immediately through the normal close path.
func (p *Pool) Get(ctx context.Context, options Options) (*Session, error) {
	type getResult struct {
		session *Session
		err     error
	}
	ch := make(chan getResult, 1)
	p.AsyncGet(options, func(session *Session, err error) {
		ch <- getResult{session: session, err: err}
	})

	select {
	case r := <-ch:
		return r.session, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.session != nil {
				r.session.Close()
			}
		}()
		return nil, ErrGetAborted
	}
}

// pollRestartFile checks the group's restart sentinel before routing.
// The stat is coalesced across concurrent request threads; cadence is
// therefore at most one check per request.
func (p *Pool) pollRestartFile(o Options) {
	name := o.GroupName()
	v, _, _ := p.restartFlight.Do(name, func() (interface{}, error) {
		fi, err := os.Stat(o.RestartFilePath())
		if err != nil {
			return int64(0), nil
		}
		return fi.ModTime().UnixNano(), nil
	})
	mtime, _ := v.(int64)
	if mtime == 0 {
		return
	}

	p.mu.Lock()
	g := p.groups[name]
	if g == nil || g.lifeStatus != GroupAlive || mtime <= g.lastRestartFileMtime {
		p.mu.Unlock()
		return
	}
	g.lastRestartFileMtime = mtime
	p.logger.Info("Restart sentinel touched", "group", name)
	var actions []Callback
	g.restart(RestartMethodDefault, &actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
}

// createGroup inserts a new group and migrates any pool-level waiters
// that were waiting for exactly this group onto its wait list. Caller
// holds the pool lock.
func (p *Pool) createGroup(o Options, actions *[]Callback) *Group {
	g := newGroup(p, o)
	p.groups[g.name] = g
	p.logger.Info("Group created", "group", g.name)

	if len(p.getWaitlist) > 0 {
		kept := p.getWaitlist[:0]
		for _, w := range p.getWaitlist {
			if w.options.GroupName() == g.name {
				g.enqueueWaiter(w, actions)
			} else {
				kept = append(kept, w)
			}
		}
		for i := len(kept); i < len(p.getWaitlist); i++ {
			p.getWaitlist[i] = nil
		}
		p.getWaitlist = kept
		if len(g.getWaitlist) > 0 {
			g.wakeUpSpawnLoop()
		}
	}
	return g
}

// removeGroup drops g from the map. Groups still owning detached
// processes are remembered so shutdown can finish their cleanup. Caller
// holds the pool lock.
func (p *Pool) removeGroup(g *Group, actions *[]Callback) {
	if p.groups[g.name] == g {
		delete(p.groups, g.name)
	}
	if g.lifeStatus == GroupAlive {
		g.shutdown(ErrGroupDetached, actions)
	}
	if len(g.detached) > 0 {
		p.shutdownGroups = append(p.shutdownGroups, g)
	}
	p.logger.Info("Group removed", "group", g.name)
}

// FindOrCreateGroup returns the group for options, creating it if needed
func (p *Pool) FindOrCreateGroup(options Options) *Group {
	o := options.withDefaults()
	p.mu.Lock()
	var actions []Callback
	g := p.groups[o.GroupName()]
	if g == nil {
		g = p.createGroup(o, &actions)
		g.wakeUpSpawnLoop()
	}
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return g
}

// FindGroupBySecret looks a group up by its administrative secret
func (p *Pool) FindGroupBySecret(secret string) *Group {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		if g.secret == secret {
			return g
		}
	}
	return nil
}

// FindProcessByGupid looks a process up by pool-unique id
func (p *Pool) FindProcessByGupid(gupid string) *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findProcessByGupidLocked(gupid)
}

func (p *Pool) findProcessByGupidLocked(gupid string) *Process {
	for _, g := range p.groups {
		for _, proc := range g.allProcesses() {
			if proc.gupid == gupid {
				return proc
			}
		}
	}
	return nil
}

// FindProcessByPid looks a process up by OS pid
func (p *Pool) FindProcessByPid(pid int) *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		for _, proc := range g.allProcesses() {
			if proc.pid == pid {
				return proc
			}
		}
	}
	return nil
}

// DetachGroupByName takes the named group out of service. Waiting
// requests fail with ErrGroupDetached; process termination continues in
// the background. Reports whether the group existed.
func (p *Pool) DetachGroupByName(name string) bool {
	p.mu.Lock()
	g := p.groups[name]
	if g == nil {
		p.mu.Unlock()
		return false
	}
	var actions []Callback
	p.removeGroup(g, &actions)
	p.capacityFreed(&actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return true
}

// DetachGroupBySecret is DetachGroupByName addressed by secret
func (p *Pool) DetachGroupBySecret(secret string) bool {
	p.mu.Lock()
	var target *Group
	for _, g := range p.groups {
		if g.secret == secret {
			target = g
			break
		}
	}
	if target == nil {
		p.mu.Unlock()
		return false
	}
	var actions []Callback
	p.removeGroup(target, &actions)
	p.capacityFreed(&actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return true
}

// DetachProcess removes proc from its group and arranges termination.
// Detaching twice has the same observable effect as once.
func (p *Pool) DetachProcess(proc *Process) bool {
	p.mu.Lock()
	var actions []Callback
	detached := p.detachProcessLocked(proc, &actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return detached
}

// DetachProcessByPid is DetachProcess addressed by OS pid
func (p *Pool) DetachProcessByPid(pid int) bool {
	p.mu.Lock()
	var target *Process
	for _, g := range p.groups {
		for _, proc := range g.allProcesses() {
			if proc.pid == pid {
				target = proc
				break
			}
		}
	}
	if target == nil {
		p.mu.Unlock()
		return false
	}
	var actions []Callback
	detached := p.detachProcessLocked(target, &actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return detached
}

// DetachProcessByGupid is DetachProcess addressed by pool-unique id
func (p *Pool) DetachProcessByGupid(gupid string) bool {
	p.mu.Lock()
	target := p.findProcessByGupidLocked(gupid)
	if target == nil {
		p.mu.Unlock()
		return false
	}
	var actions []Callback
	detached := p.detachProcessLocked(target, &actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return detached
}

// detachProcessLocked is the shared detach path: group bookkeeping, the
// pool-level capacity event, and removal of a group the detach left
// empty. Caller holds the pool lock.
func (p *Pool) detachProcessLocked(proc *Process, actions *[]Callback) bool {
	if !proc.group.detachProcess(proc, actions) {
		return false
	}
	p.maybeRemoveEmptyGroup(proc.group, actions)
	p.capacityFreed(actions)
	return true
}

// maybeRemoveEmptyGroup drops a group whose last serving process is gone
// and that has nothing in flight: no spawn, no restart, no waiters. A
// group in that state can never serve again on its own, so leaving it in
// the map would break the map-population invariant and leak an entry per
// reclaimed application. Caller holds the pool lock.
func (p *Pool) maybeRemoveEmptyGroup(g *Group, actions *[]Callback) {
	if g.lifeStatus != GroupAlive || p.groups[g.name] != g {
		return
	}
	if g.processCount() > 0 || g.processesBeingSpawned > 0 ||
		g.spawnState != spawnStateNotSpawning || g.restartInProgress ||
		len(g.getWaitlist) > 0 {
		return
	}
	p.removeGroup(g, actions)
}

// pruneShutdownGroup forgets a removed group once its detached processes
// are all gone. Caller holds the pool lock.
func (p *Pool) pruneShutdownGroup(g *Group) {
	for i, cand := range p.shutdownGroups {
		if cand == g {
			p.shutdownGroups = append(p.shutdownGroups[:i], p.shutdownGroups[i+1:]...)
			return
		}
	}
}

// AsyncDisableProcess asks the process's group to disable it; the
// callback fires when the process drains (success), dies first
// (canceled) or was already detached (error).
func (p *Pool) AsyncDisableProcess(gupid string, callback DisableCallback) {
	p.mu.Lock()
	var actions []Callback
	proc := p.findProcessByGupidLocked(gupid)
	if proc == nil {
		actions = append(actions, func() { callback(nil, DisableResultError) })
	} else {
		proc.group.disable(proc, callback, &actions)
	}
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
}

// DisableProcess is the blocking variant of AsyncDisableProcess
func (p *Pool) DisableProcess(gupid string) DisableResult {
	ch := make(chan DisableResult, 1)
	p.AsyncDisableProcess(gupid, func(_ *Process, result DisableResult) {
		ch <- result
	})
	return <-ch
}

// RequestOOBW routes new sessions away from the process until it
// drains, runs its out-of-band work, then puts it back into rotation.
// Reports whether the process was found.
func (p *Pool) RequestOOBW(gupid string) bool {
	p.mu.Lock()
	proc := p.findProcessByGupidLocked(gupid)
	if proc == nil {
		p.mu.Unlock()
		return false
	}
	var actions []Callback
	proc.group.requestOOBW(proc, &actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return true
}

// RestartGroupByName initiates a restart of the named group. Reports
// whether the group existed.
func (p *Pool) RestartGroupByName(name string, method RestartMethod) bool {
	p.mu.Lock()
	g := p.groups[name]
	if g == nil {
		p.mu.Unlock()
		return false
	}
	var actions []Callback
	g.restart(method, &actions)
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return true
}

// RestartGroupsByAppRoot restarts every group whose options share the
// app root. Returns how many groups were restarted.
func (p *Pool) RestartGroupsByAppRoot(appRoot string, method RestartMethod) int {
	p.mu.Lock()
	var actions []Callback
	count := 0
	for _, g := range p.groups {
		if g.options.AppRoot == appRoot {
			g.restart(method, &actions)
			count++
		}
	}
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
	return count
}

// SetMax changes the total process budget. Raising it is a capacity
// event that drains wait lists; lowering it below the current process
// count evicts nothing, the pool just refuses new processes until the
// count falls naturally.
func (p *Pool) SetMax(max int) {
	p.mu.Lock()
	var actions []Callback
	grew := max > p.max
	p.max = max
	p.overcommitted = p.capacityUsedUnlocked() > p.max
	if grew {
		p.capacityFreed(&actions)
	}
	p.fullVerifyInvariants()
	p.mu.Unlock()
	runAllActions(actions)
}

// SetMaxIdleTime changes the idle eviction threshold and reschedules the
// garbage collector
func (p *Pool) SetMaxIdleTime(d time.Duration) {
	p.mu.Lock()
	p.maxIdleTime = d
	p.mu.Unlock()
	p.wakeupGarbageCollector()
}

// EnableSelfChecking toggles invariant re-verification after every
// mutating operation
func (p *Pool) EnableSelfChecking(enabled bool) {
	p.mu.Lock()
	p.selfChecking = enabled
	p.mu.Unlock()
}

// CapacityUsed is the number of processes, spawning included, counted
// against the budget
func (p *Pool) CapacityUsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacityUsedUnlocked()
}

// AtFullCapacity reports whether the budget is exhausted
func (p *Pool) AtFullCapacity() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.atFullCapacityUnlocked()
}

// ProcessCount is the number of serving process handles in the pool
func (p *Pool) ProcessCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, g := range p.groups {
		count += g.processCount()
	}
	return count
}

// GroupCount is the number of groups in the pool
func (p *Pool) GroupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.groups)
}

// IsSpawning reports whether any group's spawn loop is active
func (p *Pool) IsSpawning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		if g.spawnState != spawnStateNotSpawning {
			return true
		}
	}
	return false
}

// LifeStatus reports the pool's lifecycle state
func (p *Pool) LifeStatus() PoolLifeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifeStatus
}

// PrepareForShutdown stops accepting gets, flushes every wait list with
// ErrPoolShuttingDown and asks every group to detach. Sessions already
// handed out keep running until closed.
func (p *Pool) PrepareForShutdown() {
	p.mu.Lock()
	if p.lifeStatus != PoolAlive {
		p.mu.Unlock()
		return
	}
	p.lifeStatus = PoolPreparedForShutdown
	p.logger.Info("Pool prepared for shutdown")

	var actions []Callback
	flushWaiters(p.getWaitlist, ErrPoolShuttingDown, &actions)
	p.getWaitlist = nil

	for _, g := range p.groups {
		g.shutdown(ErrPoolShuttingDown, &actions)
	}
	for name, g := range p.groups {
		delete(p.groups, name)
		if len(g.detached) > 0 {
			p.shutdownGroups = append(p.shutdownGroups, g)
		}
	}
	p.mu.Unlock()
	runAllActions(actions)
}

// Destroy tears the pool down: wait lists are flushed, interruptable
// background work is interrupted and joined, then a non-interruptable
// final sweep kills whatever detached processes remain.
func (p *Pool) Destroy() {
	p.PrepareForShutdown()

	p.mu.Lock()
	p.lifeStatus = PoolShuttingDown
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.cleanupWG.Add(1)
	go func() {
		defer p.cleanupWG.Done()
		p.finalKillSweep()
	}()
	p.cleanupWG.Wait()

	p.mu.Lock()
	p.lifeStatus = PoolShutDown
	p.mu.Unlock()
	p.logger.Info("Pool shut down")
}

// finalKillSweep force-kills every detached process still alive. This is
// the non-interruptable tail of shutdown.
func (p *Pool) finalKillSweep() {
	p.mu.Lock()
	groups := append([]*Group{}, p.shutdownGroups...)
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	p.shutdownGroups = nil

	var pids []int
	for _, g := range groups {
		for _, proc := range g.detached {
			if proc.osAlive() {
				pids = append(pids, proc.pid)
			}
		}
		g.detached = nil
		g.lifeStatus = GroupShutDown
	}
	p.mu.Unlock()

	for _, pid := range pids {
		p.logger.Warn("Killing leftover detached process", "pid", pid)
		killProcess(pid)
	}
}

// runHookScript defers a hook-script invocation as a post-lock action
func (p *Pool) runHookScript(actions *[]Callback, name string, options map[string]string) {
	if p.hooks == nil {
		return
	}
	runner := p.hooks
	ctx := p.ctx
	*actions = append(*actions, func() {
		_ = runner.Run(ctx, name, options)
	})
}

// allProcesses returns every process handle of a group: enabled,
// disabling and detached. Caller holds the pool lock.
func (g *Group) allProcesses() []*Process {
	procs := make([]*Process, 0, g.enabled.Len()+len(g.disabling)+len(g.detached))
	procs = append(procs, g.enabled.all()...)
	procs = append(procs, g.disabling...)
	procs = append(procs, g.detached...)
	return procs
}
