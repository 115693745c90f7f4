package pool

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRestartCoalescing(t *testing.T) {
	p, spawner, _ := newTestPool(t, 4, nil)

	opts := testOptions("/apps/a")
	name := opts.GroupName()
	session := mustGetSession(t, asyncGet(p, opts))
	session.Close()

	// Gate the spawner so the first restart stays in flight.
	gate := make(chan struct{})
	spawner.mu.Lock()
	spawner.gate = gate
	spawner.mu.Unlock()

	if !p.RestartGroupByName(name, RestartMethodRolling) {
		t.Fatal("restart did not find the group")
	}
	if !p.RestartGroupByName(name, RestartMethodRolling) {
		t.Fatal("second restart did not find the group")
	}

	p.mu.Lock()
	generation := p.groups[name].generation
	inProgress := p.groups[name].restartInProgress
	p.mu.Unlock()
	if generation != 1 {
		t.Errorf("generation = %d after coalesced restarts, want 1", generation)
	}
	if !inProgress {
		t.Error("restart should still be in flight behind the gated spawner")
	}

	close(gate)
	eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		g := p.groups[name]
		return g != nil && !g.restartInProgress
	}, "restart completes once the spawner unblocks")
}

func TestImmediateRestartDetachesBusyProcesses(t *testing.T) {
	aborted := make(chan int, 4)
	p, _, _ := newTestPool(t, 4, func(cfg *Config) {
		cfg.AbortLongRunningConnections = func(proc *Process) {
			aborted <- proc.Pid()
		}
	})

	opts := testOptions("/apps/a")
	name := opts.GroupName()
	session := mustGetSession(t, asyncGet(p, opts))

	if !p.RestartGroupByName(name, RestartMethodImmediate) {
		t.Fatal("restart did not find the group")
	}

	select {
	case pid := <-aborted:
		if pid != session.Pid() {
			t.Errorf("abort callback got pid %d, want %d", pid, session.Pid())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("abort-long-running-connections callback never fired")
	}

	eventually(t, func() bool {
		gens := groupGenerations(p, name)
		return len(gens) == 1 && gens[0] == 1
	}, "fresh generation-1 process replaces the detached one")
	session.Close()
}

func TestRollingRestartDrainsOldGeneration(t *testing.T) {
	p, _, _ := newTestPool(t, 4, nil)

	opts := testOptions("/apps/a")
	name := opts.GroupName()
	session := mustGetSession(t, asyncGet(p, opts))

	if !p.RestartGroupByName(name, RestartMethodRolling) {
		t.Fatal("restart did not find the group")
	}

	// The busy old process drains instead of dying under the session.
	p.mu.Lock()
	g := p.groups[name]
	oldDisabling := len(g.disabling)
	p.mu.Unlock()
	if oldDisabling != 1 {
		t.Fatalf("old busy process not moved to disabling: %d", oldDisabling)
	}

	eventually(t, func() bool {
		gens := enabledGupids(p, name)
		return len(gens) == 1
	}, "replacement process comes up while the old one drains")

	session.Close()
	eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		g := p.groups[name]
		return g != nil && len(g.disabling) == 0 && !g.restartInProgress
	}, "old generation fully drained after its session closed")
}

func TestRestartSentinelTriggersRestart(t *testing.T) {
	appRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(appRoot, "tmp"), 0o755); err != nil {
		t.Fatal(err)
	}

	p, _, _ := newTestPool(t, 4, nil)

	opts := testOptions(appRoot)
	name := opts.GroupName()
	session := mustGetSession(t, asyncGet(p, opts))
	session.Close()

	// Touch the sentinel with an mtime in the future so it is strictly
	// newer than the baseline recorded at group creation.
	marker := filepath.Join(appRoot, "tmp", RestartFileName)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(marker, future, future); err != nil {
		t.Fatal(err)
	}

	session2 := mustGetSession(t, asyncGet(p, opts))
	session2.Close()

	eventually(t, func() bool {
		gens := groupGenerations(p, name)
		for _, gen := range gens {
			if gen >= 1 {
				return true
			}
		}
		return false
	}, "touching the sentinel bumps the generation")
}

func TestDetachCancelsPendingDisable(t *testing.T) {
	p, _, _ := newTestPool(t, 2, nil)

	opts := testOptions("/apps/a")
	session := mustGetSession(t, asyncGet(p, opts))
	gupid := session.Gupid()

	results := make(chan DisableResult, 1)
	p.AsyncDisableProcess(gupid, func(_ *Process, result DisableResult) {
		results <- result
	})

	if !p.DetachProcessByGupid(gupid) {
		t.Fatal("detach did not find the process")
	}

	select {
	case result := <-results:
		if result != DisableResultCanceled {
			t.Errorf("disable result = %v, want canceled", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("disable callback never fired after detach")
	}

	// Disabling an already-detached process reports an error.
	done := make(chan DisableResult, 1)
	p.AsyncDisableProcess(gupid, func(_ *Process, result DisableResult) {
		done <- result
	})
	if result := <-done; result != DisableResultError {
		t.Errorf("disable of detached process = %v, want error", result)
	}
	session.Close()
}

func TestOOBWRoutesAroundProcess(t *testing.T) {
	p, spawner, _ := newTestPool(t, 4, nil)
	spawner.setConcurrency(0)

	opts := testOptions("/apps/a")
	session := mustGetSession(t, asyncGet(p, opts))
	gupid := session.Gupid()

	if !p.RequestOOBW(gupid) {
		t.Fatal("RequestOOBW did not find the process")
	}

	// With unlimited concurrency the same process would normally take
	// this too; out-of-band work forces a second process instead.
	other := mustGetSession(t, asyncGet(p, opts))
	if other.Gupid() == gupid {
		t.Error("request was routed to a process awaiting out-of-band work")
	}
	other.Close()

	// Draining runs the work and puts the process back into rotation.
	session.Close()
	eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		proc := p.findProcessByGupidLocked(gupid)
		return proc != nil && !proc.oobwRequested && proc.canAccept()
	}, "process re-enabled after out-of-band work")
}

func TestDisableIdleProcessSucceedsImmediately(t *testing.T) {
	p, _, _ := newTestPool(t, 2, nil)

	session := mustGetSession(t, asyncGet(p, testOptions("/apps/a")))
	gupid := session.Gupid()
	session.Close()

	if result := p.DisableProcess(gupid); result != DisableResultSuccess {
		t.Errorf("disable of idle process = %v, want success", result)
	}

	if result := p.DisableProcess("no-such-gupid"); result != DisableResultError {
		t.Errorf("disable of unknown gupid = %v, want error", result)
	}
}
