package pool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pkmiec/passenger/internal/config"
	"github.com/pkmiec/passenger/internal/spawningkit"
)

// Fake pids start far above any real pid_max so liveness probes and kill
// signals reliably see ESRCH.
const testPIDBase = 10_000_000

// mockSpawner is a controllable spawning kit for tests
type mockSpawner struct {
	mu          sync.Mutex
	nextPID     int
	concurrency int
	fail        error
	// gate, when non-nil, blocks every spawn until released or the
	// context is cancelled
	gate   chan struct{}
	spawns []spawnRecord
}

type spawnRecord struct {
	spec       spawningkit.AppSpec
	generation int
}

func newMockSpawner() *mockSpawner {
	return &mockSpawner{nextPID: testPIDBase, concurrency: 1}
}

func (m *mockSpawner) Spawn(ctx context.Context, spec spawningkit.AppSpec, generation int) (*spawningkit.Result, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, spawningkit.NewSpawnError(spec.AppRoot, "spawn interrupted", ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawns = append(m.spawns, spawnRecord{spec: spec, generation: generation})
	if m.fail != nil {
		return nil, m.fail
	}
	m.nextPID++
	return &spawningkit.Result{
		PID:           m.nextPID,
		Concurrency:   m.concurrency,
		SocketAddress: "unix:/tmp/test.sock",
	}, nil
}

func (m *mockSpawner) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *mockSpawner) setConcurrency(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concurrency = n
}

func (m *mockSpawner) spawnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spawns)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestPool builds a pool with a mock spawner, a fake clock and
// self-checking on. mutate may adjust the config before construction.
func newTestPool(t *testing.T, max int, mutate func(*Config)) (*Pool, *mockSpawner, *clockwork.FakeClock) {
	t.Helper()
	spawner := newMockSpawner()
	clock := clockwork.NewFakeClock()
	cfg := Config{
		Pool: config.PoolConfig{
			Max:          max,
			SelfChecking: true,
		},
		Spawner: spawner,
		Logger:  testLogger(),
		Clock:   clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Destroy)
	return p, spawner, clock
}

// testOptions builds request options for a named application
func testOptions(appRoot string) Options {
	return Options{
		AppRoot:      appRoot,
		Environment:  "production",
		StartCommand: []string{"ruby", "app.rb"},
	}
}

// getOutcome captures one get callback invocation
type getOutcome struct {
	session *Session
	err     error
}

// asyncGet issues a request and returns the channel its outcome lands on
func asyncGet(p *Pool, o Options) chan getOutcome {
	ch := make(chan getOutcome, 2)
	p.AsyncGet(o, func(session *Session, err error) {
		ch <- getOutcome{session: session, err: err}
	})
	return ch
}

// awaitOutcome waits for a callback with a real-time deadline
func awaitOutcome(t *testing.T, ch chan getOutcome) getOutcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for get callback")
		return getOutcome{}
	}
}

// mustGetSession waits for a callback and requires a session
func mustGetSession(t *testing.T, ch chan getOutcome) *Session {
	t.Helper()
	out := awaitOutcome(t, ch)
	if out.err != nil {
		t.Fatalf("get failed: %v", out.err)
	}
	if out.session == nil {
		t.Fatal("get returned neither session nor error")
	}
	return out.session
}

// requireNoOutcome asserts that no callback has fired yet
func requireNoOutcome(t *testing.T, ch chan getOutcome) {
	t.Helper()
	select {
	case out := <-ch:
		t.Fatalf("unexpected callback: session=%v err=%v", out.session, out.err)
	case <-time.After(50 * time.Millisecond):
	}
}

// eventually polls cond with a real-time deadline
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline: %s", msg)
}

// groupGenerations snapshots the generation of every serving process in
// the named group
func groupGenerations(p *Pool, name string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := p.groups[name]
	if g == nil {
		return nil
	}
	gens := make([]int, 0, g.processCount())
	for _, proc := range g.enabled.all() {
		gens = append(gens, proc.generation)
	}
	for _, proc := range g.disabling {
		gens = append(gens, proc.generation)
	}
	return gens
}

// enabledGupids snapshots the enabled process ids of the named group
func enabledGupids(p *Pool, name string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := p.groups[name]
	if g == nil {
		return nil
	}
	ids := make([]string, 0, g.enabledCount())
	for _, proc := range g.enabled.all() {
		ids = append(ids, proc.gupid)
	}
	return ids
}
