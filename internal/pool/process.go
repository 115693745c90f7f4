package pool

import (
	"container/heap"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/pkmiec/passenger/internal/metrics"
	"github.com/pkmiec/passenger/internal/spawningkit"
)

// ProcessState is the lifecycle state of a worker process
type ProcessState int

const (
	// ProcessEnabled accepts new sessions
	ProcessEnabled ProcessState = iota
	// ProcessDisabling keeps existing sessions but accepts no new ones
	ProcessDisabling
	// ProcessDetached no longer serves; the detached-process checker
	// arranges OS termination. Terminal.
	ProcessDetached
)

// String renders the state for logs and dumps
func (s ProcessState) String() string {
	switch s {
	case ProcessEnabled:
		return "enabled"
	case ProcessDisabling:
		return "disabling"
	case ProcessDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Process is the in-memory handle for one running worker. All fields are
// guarded by the pool mutex; the struct itself carries no lock.
type Process struct {
	// gupid is the pool-unique id, stable across OS pid reuse
	gupid string
	// pid is the OS process id
	pid int
	// group is a non-owning back-reference to the owning cohort
	group *Group
	// generation is the restart cohort this process belongs to
	generation int

	// concurrency is the declared session capacity; 0 means unlimited
	concurrency int
	// sessionCount is the number of live sessions
	sessionCount int
	// sessionsStarted and processed are lifetime counters
	sessionsStarted int64
	processed       int64
	// lastUsed is when a session last started or ended on this process
	lastUsed time.Time

	// socketAddress is where the worker accepts request payload
	socketAddress string
	// stickySessionID is matched against Options.StickySessionID
	stickySessionID uint32
	spawnStartTime  time.Time
	spawnEndTime    time.Time

	state ProcessState
	// oobwRequested routes new sessions away until the process drains and
	// its out-of-band work has run
	oobwRequested bool

	// metrics is the latest analytics sample
	metrics metrics.ProcessMetrics

	// heapIndex is this process's slot in the group's enabled heap, -1
	// when not enabled
	heapIndex int

	// detachedAt, termSentAt drive the detached-process checker
	detachedAt time.Time
	termSentAt time.Time
}

// newProcess wraps a spawn result. Only a group's spawn loop creates
// processes.
func newProcess(g *Group, res *spawningkit.Result, generation int, now time.Time) *Process {
	gupid := uuid.NewString()
	return &Process{
		gupid:           gupid,
		pid:             res.PID,
		group:           g,
		generation:      generation,
		concurrency:     res.Concurrency,
		lastUsed:        now,
		socketAddress:   res.SocketAddress,
		stickySessionID: stickyIDFor(gupid),
		spawnStartTime:  res.SpawnStartTime,
		spawnEndTime:    res.SpawnEndTime,
		state:           ProcessEnabled,
		heapIndex:       -1,
	}
}

// stickyIDFor derives a non-zero sticky counter from the gupid
func stickyIDFor(gupid string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(gupid))
	id := h.Sum32()
	if id == 0 {
		id = 1
	}
	return id
}

// Gupid returns the pool-unique process id
func (p *Process) Gupid() string { return p.gupid }

// Pid returns the OS process id
func (p *Process) Pid() int { return p.pid }

// Generation returns the restart cohort counter
func (p *Process) Generation() int { return p.generation }

// GroupName returns the owning group's name
func (p *Process) GroupName() string { return p.group.name }

// canAccept reports whether routing may place a new session here
func (p *Process) canAccept() bool {
	if p.state != ProcessEnabled || p.oobwRequested {
		return false
	}
	return p.concurrency == 0 || p.sessionCount < p.concurrency
}

// busyness orders processes for routing; smaller is less loaded
func (p *Process) busyness() int {
	return p.sessionCount
}

// isIdle reports whether the process has no live sessions
func (p *Process) isIdle() bool {
	return p.sessionCount == 0
}

// newSession starts a session. The caller must have checked canAccept.
func (p *Process) newSession(pool *Pool, now time.Time) *Session {
	p.sessionCount++
	p.sessionsStarted++
	p.lastUsed = now
	return &Session{
		pool:            pool,
		process:         p,
		socketAddress:   p.socketAddress,
		stickySessionID: p.stickySessionID,
	}
}

// sessionClosed records the end of a session
func (p *Process) sessionClosed(now time.Time) {
	p.sessionCount--
	p.processed++
	p.lastUsed = now
}

// osAlive polls the OS for liveness
func (p *Process) osAlive() bool {
	return metrics.ProcessAlive(p.pid)
}

// processHeap keeps a group's enabled processes ordered so the
// least-loaded one is at the top in O(log n). Ties go to the least
// recently used process, spreading load instead of concentrating it on
// the warmest worker.
type processHeap struct {
	procs []*Process
}

func (h *processHeap) Len() int { return len(h.procs) }

func (h *processHeap) Less(i, j int) bool {
	a, b := h.procs[i], h.procs[j]
	if a.busyness() != b.busyness() {
		return a.busyness() < b.busyness()
	}
	return a.lastUsed.Before(b.lastUsed)
}

func (h *processHeap) Swap(i, j int) {
	h.procs[i], h.procs[j] = h.procs[j], h.procs[i]
	h.procs[i].heapIndex = i
	h.procs[j].heapIndex = j
}

// Push implements heap.Interface
func (h *processHeap) Push(x any) {
	p := x.(*Process)
	p.heapIndex = len(h.procs)
	h.procs = append(h.procs, p)
}

// Pop implements heap.Interface
func (h *processHeap) Pop() any {
	old := h.procs
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.heapIndex = -1
	h.procs = old[:n-1]
	return p
}

// add inserts a process
func (h *processHeap) add(p *Process) {
	heap.Push(h, p)
}

// remove deletes a process wherever it sits
func (h *processHeap) remove(p *Process) {
	if p.heapIndex >= 0 && p.heapIndex < len(h.procs) && h.procs[p.heapIndex] == p {
		heap.Remove(h, p.heapIndex)
	}
}

// fix restores ordering after p's load changed
func (h *processHeap) fix(p *Process) {
	if p.heapIndex >= 0 && p.heapIndex < len(h.procs) && h.procs[p.heapIndex] == p {
		heap.Fix(h, p.heapIndex)
	}
}

// top returns the least-loaded process, or nil when empty
func (h *processHeap) top() *Process {
	if len(h.procs) == 0 {
		return nil
	}
	return h.procs[0]
}

// all returns the backing slice; callers must not mutate it
func (h *processHeap) all() []*Process {
	return h.procs
}
