package spawningkit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AppSpec describes what to spawn. It is the spawning kit's view of the
// pool's options: everything needed to materialise one worker process.
type AppSpec struct {
	// AppRoot is the application root directory
	AppRoot string
	// StartCommand is the command line that starts one worker
	StartCommand []string
	// Environment is the logical environment name (production, staging, ...)
	Environment string
	// EnvVars are extra environment variables for the worker
	EnvVars map[string]string
	// User is the identity the worker should run as; empty means inherit
	User string
	// SocketPath, when non-empty, is a filesystem socket the worker must
	// create before it counts as ready
	SocketPath string
	// StartTimeout bounds the whole spawn attempt
	StartTimeout time.Duration
}

// Result describes a successfully spawned worker process.
type Result struct {
	// PID is the OS process id
	PID int
	// Concurrency is the worker's declared concurrency; 0 means unlimited
	Concurrency int
	// SocketAddress is where the worker accepts requests
	SocketAddress string
	// SpawnStartTime and SpawnEndTime bracket the spawn attempt
	SpawnStartTime time.Time
	SpawnEndTime   time.Time
}

// Spawner materialises worker processes from an application spec.
// Implementations must be safe for concurrent use; the pool serialises
// spawns per group but runs groups concurrently.
type Spawner interface {
	Spawn(ctx context.Context, spec AppSpec, generation int) (*Result, error)
}

// Preloader is a long-lived parent process kept around for fast forking.
// The pool's garbage collector closes preloaders that sit idle too long.
type Preloader interface {
	// LastUsed reports when the preloader last served a spawn
	LastUsed() time.Time
	// Close shuts the preloader down; it must be idempotent
	Close() error
}

// SpawnError is the typed failure returned when a spawn attempt fails.
// The wrapped cause is preserved for callers that need it.
type SpawnError struct {
	// AppRoot identifies the application that failed to spawn
	AppRoot string
	// Problem is a short human-readable description
	Problem string
	// Err is the underlying cause, possibly nil
	Err error
}

// Error implements the error interface
func (e *SpawnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not spawn process for application %s: %s: %v", e.AppRoot, e.Problem, e.Err)
	}
	return fmt.Sprintf("could not spawn process for application %s: %s", e.AppRoot, e.Problem)
}

// Unwrap exposes the cause for errors.Is / errors.As
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// NewSpawnError constructs a SpawnError wrapping cause
func NewSpawnError(appRoot, problem string, cause error) *SpawnError {
	return &SpawnError{AppRoot: appRoot, Problem: problem, Err: cause}
}

// IsSpawnError reports whether err is (or wraps) a SpawnError
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}
