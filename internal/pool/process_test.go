package pool

import (
	"testing"
	"time"

	"github.com/pkmiec/passenger/internal/spawningkit"
)

func testProcess(pid, concurrency int, lastUsed time.Time) *Process {
	proc := newProcess(nil, &spawningkit.Result{PID: pid, Concurrency: concurrency}, 0, lastUsed)
	return proc
}

func TestProcessHeapOrdering(t *testing.T) {
	base := time.Unix(1000, 0)
	var h processHeap

	light := testProcess(1, 0, base.Add(2*time.Second))
	heavy := testProcess(2, 0, base)
	heavy.sessionCount = 3

	h.add(heavy)
	h.add(light)
	if h.top() != light {
		t.Error("least-loaded process is not at the top")
	}

	// Ties break toward the least recently used process.
	colder := testProcess(3, 0, base.Add(time.Second))
	h.add(colder)
	if h.top() != colder {
		t.Error("LRU tie-break did not prefer the colder process")
	}

	// Load changes reorder in place.
	colder.sessionCount = 5
	h.fix(colder)
	if h.top() != light {
		t.Error("heap did not reorder after a load change")
	}

	h.remove(light)
	if h.top() != heavy {
		t.Errorf("heap top after removal is pid %d, want %d", h.top().pid, heavy.pid)
	}
	if light.heapIndex != -1 {
		t.Error("removed process still carries a heap index")
	}
}

func TestProcessCanAccept(t *testing.T) {
	now := time.Unix(1000, 0)

	bounded := testProcess(1, 2, now)
	if !bounded.canAccept() {
		t.Error("fresh process refused a session")
	}
	bounded.sessionCount = 2
	if bounded.canAccept() {
		t.Error("process over its concurrency accepted a session")
	}

	unlimited := testProcess(2, 0, now)
	unlimited.sessionCount = 50
	if !unlimited.canAccept() {
		t.Error("unlimited-concurrency process refused a session")
	}

	disabled := testProcess(3, 0, now)
	disabled.state = ProcessDisabling
	if disabled.canAccept() {
		t.Error("disabling process accepted a session")
	}

	detached := testProcess(4, 0, now)
	detached.state = ProcessDetached
	if detached.canAccept() {
		t.Error("detached process accepted a session")
	}

	oobw := testProcess(5, 0, now)
	oobw.oobwRequested = true
	if oobw.canAccept() {
		t.Error("process awaiting out-of-band work accepted a session")
	}
}

func TestProcessSessionAccounting(t *testing.T) {
	p, _, _ := newTestPool(t, 2, nil)
	start := time.Unix(1000, 0)
	proc := testProcess(1, 0, start)

	s1 := proc.newSession(p, start.Add(time.Second))
	s2 := proc.newSession(p, start.Add(2*time.Second))
	_ = s1
	_ = s2
	if proc.sessionCount != 2 || proc.sessionsStarted != 2 {
		t.Fatalf("counts after two sessions: live %d, started %d", proc.sessionCount, proc.sessionsStarted)
	}
	if !proc.lastUsed.Equal(start.Add(2 * time.Second)) {
		t.Error("lastUsed not advanced by newSession")
	}

	proc.sessionClosed(start.Add(3 * time.Second))
	if proc.sessionCount != 1 || proc.processed != 1 {
		t.Fatalf("counts after close: live %d, processed %d", proc.sessionCount, proc.processed)
	}
	if proc.sessionsStarted-proc.processed != int64(proc.sessionCount) {
		t.Error("session accounting identity broken")
	}

	proc.sessionClosed(start.Add(4 * time.Second))
	if !proc.isIdle() {
		t.Error("process with no sessions is not idle")
	}
}

func TestStickyIDNonZero(t *testing.T) {
	for i := 0; i < 100; i++ {
		proc := testProcess(i, 0, time.Unix(1000, 0))
		if proc.stickySessionID == 0 {
			t.Fatal("sticky session id must never be zero")
		}
	}
}
