package pool

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pkmiec/passenger/internal/spawningkit"
)

// shouldSpawn evaluates the spawn trigger: keep at least MinProcesses
// warm, and grow while requests are waiting and no enabled process has
// room, all subject to the group's own cap and the pool budget.
// Caller holds the pool lock.
func (g *Group) shouldSpawn() bool {
	if g.lifeStatus != GroupAlive || g.pool.lifeStatus != PoolAlive {
		return false
	}
	if g.options.MaxProcesses > 0 && g.capacityUsed() >= g.options.MaxProcesses {
		return false
	}
	if g.pool.atFullCapacityUnlocked() {
		return false
	}
	if g.restartInProgress && g.currentGenCount() < g.restartGoal {
		return true
	}
	if g.enabledCount()+g.processesBeingSpawned < g.options.MinProcesses {
		return true
	}
	if len(g.getWaitlist) > 0 && !g.enabledHasCapacity() {
		return true
	}
	return false
}

// wakeUpSpawnLoop starts the spawn loop if the trigger fires and no loop
// is running. Returns whether a loop is (now) running for this group.
// Caller holds the pool lock.
func (g *Group) wakeUpSpawnLoop() bool {
	if g.lifeStatus != GroupAlive || g.pool.lifeStatus != PoolAlive {
		return false
	}
	if g.spawnState != spawnStateNotSpawning {
		// The running loop re-evaluates the trigger after every attempt.
		return true
	}
	if !g.shouldSpawn() {
		return false
	}
	if g.restartInProgress {
		g.spawnState = spawnStateRestarting
	} else {
		g.spawnState = spawnStateSpawning
	}
	g.pool.wg.Add(1)
	go g.spawnLoop()
	return true
}

// spawnLoop issues spawn requests one at a time until the trigger stops
// firing. It is the only creator of Process values for this group. The
// pool lock is dropped around the blocking call into the spawning kit
// and every precondition is re-verified after re-acquiring it.
func (g *Group) spawnLoop() {
	p := g.pool
	defer p.wg.Done()

	for {
		p.mu.Lock()
		if !g.shouldSpawn() {
			g.spawnState = spawnStateNotSpawning
			p.mu.Unlock()
			return
		}
		spec := g.spawnSpec()
		generation := g.generation
		g.processesBeingSpawned++
		p.mu.Unlock()

		result, err := p.spawner.Spawn(p.ctx, spec, generation)

		var actions []Callback
		p.mu.Lock()
		g.processesBeingSpawned--

		if err != nil {
			g.handleSpawnFailure(err, &actions)
			p.fullVerifyInvariants()
			p.mu.Unlock()
			runAllActions(actions)
			return
		}

		proc := newProcess(g, result, generation, p.clock.Now())
		if generation != g.generation || g.lifeStatus != GroupAlive || p.lifeStatus != PoolAlive {
			// The world changed while we were spawning: this process
			// belongs to a superseded generation or a dying group. Send it
			// straight to termination instead of serving with it.
			proc.state = ProcessDetached
			proc.detachedAt = p.clock.Now()
			g.detached = append(g.detached, proc)
			g.startDetachedChecker()
		} else {
			g.attach(proc, &actions)
			g.maybeFinishRestart()
			if len(p.getWaitlist) > 0 {
				// The new process may have freed nothing here, but a group
				// with no waiters and a fresh idle process is exactly what
				// pool-level waiters trash for capacity.
				p.assignSessionsToGetWaiters(&actions)
			}
		}

		cont := g.shouldSpawn()
		if !cont {
			g.spawnState = spawnStateNotSpawning
			p.maybeRemoveEmptyGroup(g, &actions)
		}
		p.fullVerifyInvariants()
		p.mu.Unlock()
		runAllActions(actions)

		if !cont {
			return
		}
	}
}

// spawnSpec renders the group's options for the spawning kit, assigning
// each attempt its own socket path when a socket directory is configured
func (g *Group) spawnSpec() spawningkit.AppSpec {
	spec := g.options.appSpec()
	if g.options.SocketDir != "" {
		spec.SocketPath = filepath.Join(g.options.SocketDir, "worker."+uuid.NewString()+".sock")
	}
	return spec
}

// handleSpawnFailure flushes this group's waiters with the failure and
// lets the pool re-evaluate its own wait list with the capacity the
// reserved slot gave back. A group left with no processes at all is
// removed from the pool. Caller holds the pool lock.
func (g *Group) handleSpawnFailure(err error, actions *[]Callback) {
	p := g.pool
	g.spawnState = spawnStateNotSpawning

	p.logger.Error("Spawn attempt failed",
		"group", g.name,
		"error", err,
	)

	flushWaiters(g.getWaitlist, err, actions)
	g.getWaitlist = nil

	p.maybeRemoveEmptyGroup(g, actions)
	// Re-evaluate pool-level waiters with the capacity the reserved slot
	// gave back. Deliberately no blanket spawn kick here: a persistently
	// failing group must not retry in a hot loop.
	p.assignSessionsToGetWaiters(actions)
	p.wakeupGarbageCollector()
}

// maybeFinishRestart completes an in-flight restart once no process of
// an older generation remains in the serving sets. Caller holds the pool
// lock.
func (g *Group) maybeFinishRestart() {
	if !g.restartInProgress {
		return
	}
	for _, proc := range g.enabled.all() {
		if proc.generation < g.generation {
			return
		}
	}
	for _, proc := range g.disabling {
		if proc.generation < g.generation {
			return
		}
	}
	if g.currentGenCount() < g.restartGoal && g.shouldSpawn() {
		return
	}
	g.restartInProgress = false
	g.restartGoal = 0
	if g.spawnState == spawnStateRestarting {
		g.spawnState = spawnStateSpawning
	}
	g.pool.logger.Info("Restart complete", "group", g.name, "generation", g.generation)
}
