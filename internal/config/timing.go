package config

import "time"

// Default timing configurations used throughout the agent
const (
	// DefaultMaxIdleTime is how long an enabled process may sit without a
	// session before the garbage collector shuts it down
	DefaultMaxIdleTime = 5 * time.Minute

	// DefaultMaxPreloaderIdleTime is how long a preloader may sit unused
	// before the garbage collector shuts it down
	DefaultMaxPreloaderIdleTime = 15 * time.Minute

	// DefaultGCRunInterval is the ceiling on how long the garbage collector
	// sleeps when no idle-expiry deadline is pending sooner
	DefaultGCRunInterval = 5 * time.Minute

	// DefaultDetachedProcessCheckInterval is how often a group sweeps its
	// detached processes for termination
	DefaultDetachedProcessCheckInterval = 1 * time.Second

	// DefaultDetachedProcessKillGracePeriod is how long a detached process
	// gets between SIGTERM and SIGKILL
	DefaultDetachedProcessKillGracePeriod = 5 * time.Second

	// DefaultAnalyticsCollectionInterval is how often process and system
	// metrics are collected
	DefaultAnalyticsCollectionInterval = 10 * time.Second

	// DefaultStartTimeout is how long a spawn attempt may take before it is
	// treated as failed
	DefaultStartTimeout = 90 * time.Second

	// DefaultMaxRequestQueueTime is how long a get request may sit on a wait
	// list before it fails with a queue timeout. Zero disables the bound.
	DefaultMaxRequestQueueTime = 0
)

// Default sizing configurations
const (
	// DefaultMax is the default total process budget across all groups
	DefaultMax = 6

	// DefaultMinProcesses is the default per-group minimum process count
	DefaultMinProcesses = 1

	// DefaultMaxRequestQueueSize is a wait-list bound of 100 entries. The
	// pool does not apply it: Options.withDefaults leaves an unset
	// MaxRequestQueueSize at zero, which means unbounded.
	DefaultMaxRequestQueueSize = 100

	// DefaultConcurrency is a per-worker concurrency of one. The pool does
	// not apply it: a worker whose spawn result reports a concurrency of
	// zero is treated as unlimited.
	DefaultConcurrency = 1
)
