package spawningkit

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// socketPollInterval is how often the spawner re-checks for the
	// worker's socket while waiting for readiness
	socketPollInterval = 50 * time.Millisecond
)

// CommandSpawner materialises workers by running the spec's start command
// directly with os/exec. Spawned children are reaped on exit by a
// background wait. The spec's User is not applied: workers run as the
// agent's own user.
type CommandSpawner struct {
	logger *slog.Logger
	clock  clockwork.Clock
}

// NewCommandSpawner creates a CommandSpawner
func NewCommandSpawner(logger *slog.Logger) *CommandSpawner {
	return NewCommandSpawnerWithClock(logger, clockwork.NewRealClock())
}

// NewCommandSpawnerWithClock creates a CommandSpawner with an injected
// clock. The clock drives the readiness poll ticker and the spawn
// timestamps; the start timeout is a real-time context deadline.
func NewCommandSpawnerWithClock(logger *slog.Logger, clock clockwork.Clock) *CommandSpawner {
	return &CommandSpawner{
		logger: logger.With("component", "command_spawner"),
		clock:  clock,
	}
}

// Spawn implements Spawner. The attempt fails if the start command cannot
// be started, exits before becoming ready, or does not create its socket
// within the spec's start timeout.
func (cs *CommandSpawner) Spawn(ctx context.Context, spec AppSpec, generation int) (*Result, error) {
	start := cs.clock.Now()

	if len(spec.StartCommand) == 0 {
		return nil, NewSpawnError(spec.AppRoot, "no start command configured", nil)
	}

	if spec.StartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.StartTimeout)
		defer cancel()
	}

	cmd := exec.Command(spec.StartCommand[0], spec.StartCommand[1:]...)
	cmd.Dir = spec.AppRoot
	cmd.Env = append(os.Environ(),
		"PASSENGER_APP_ENV="+spec.Environment,
		"PASSENGER_SPAWN_GENERATION="+strconv.Itoa(generation),
	)
	for k, v := range spec.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if spec.SocketPath != "" {
		cmd.Env = append(cmd.Env, "PASSENGER_SOCKET_PATH="+spec.SocketPath)
	}

	if err := cmd.Start(); err != nil {
		return nil, NewSpawnError(spec.AppRoot, "start command failed to launch", err)
	}

	// Reap the child whenever it exits so it never lingers as a zombie.
	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	cs.logger.Debug("Worker started, waiting for readiness",
		"app_root", spec.AppRoot,
		"pid", cmd.Process.Pid,
		"generation", generation,
	)

	if err := cs.waitUntilReady(ctx, spec, exited); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return &Result{
		PID:            cmd.Process.Pid,
		Concurrency:    0,
		SocketAddress:  spec.SocketPath,
		SpawnStartTime: start,
		SpawnEndTime:   cs.clock.Now(),
	}, nil
}

// waitUntilReady blocks until the worker's socket exists, the worker
// exits, or the deadline passes. A spec without a socket path counts as
// ready the moment the process is running.
func (cs *CommandSpawner) waitUntilReady(ctx context.Context, spec AppSpec, exited <-chan error) error {
	if spec.SocketPath == "" {
		return nil
	}

	ticker := cs.clock.NewTicker(socketPollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(spec.SocketPath); err == nil {
			return nil
		}
		select {
		case err := <-exited:
			return NewSpawnError(spec.AppRoot, "worker exited before becoming ready", err)
		case <-ctx.Done():
			return NewSpawnError(spec.AppRoot, "worker did not become ready before the start timeout", ctx.Err())
		case <-ticker.Chan():
		}
	}
}
