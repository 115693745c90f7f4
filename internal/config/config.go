package config

import "time"

// PoolConfig holds configuration for the application process pool
type PoolConfig struct {
	// Max is the total process budget across all groups
	Max int `yaml:"max"`
	// MaxIdleTime is how long an enabled process may be idle before the
	// garbage collector removes it
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	// MaxPreloaderIdleTime is how long a preloader may be idle before the
	// garbage collector removes it
	MaxPreloaderIdleTime time.Duration `yaml:"max_preloader_idle_time"`
	// GCRunInterval is the ceiling on the garbage collector's sleep
	GCRunInterval time.Duration `yaml:"gc_run_interval"`
	// DetachedProcessCheckInterval is how often detached processes are
	// swept for termination
	DetachedProcessCheckInterval time.Duration `yaml:"detached_process_check_interval"`
	// DetachedProcessKillGracePeriod is the SIGTERM to SIGKILL grace period
	DetachedProcessKillGracePeriod time.Duration `yaml:"detached_process_kill_grace_period"`
	// AnalyticsCollectionInterval is how often process and system metrics
	// are collected
	AnalyticsCollectionInterval time.Duration `yaml:"analytics_collection_interval"`
	// SelfChecking re-verifies pool invariants after every mutating
	// operation; a violation aborts the agent
	SelfChecking bool `yaml:"self_checking"`
}

// DefaultPoolConfig returns default configuration for the pool
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Max:                            DefaultMax,
		MaxIdleTime:                    DefaultMaxIdleTime,
		MaxPreloaderIdleTime:           DefaultMaxPreloaderIdleTime,
		GCRunInterval:                  DefaultGCRunInterval,
		DetachedProcessCheckInterval:   DefaultDetachedProcessCheckInterval,
		DetachedProcessKillGracePeriod: DefaultDetachedProcessKillGracePeriod,
		AnalyticsCollectionInterval:    DefaultAnalyticsCollectionInterval,
		SelfChecking:                   false,
	}
}

// HookConfig describes a single hook script
type HookConfig struct {
	// Command is the script to execute
	Command string `yaml:"command"`
	// Mandatory makes the hook runner return a non-zero exit as an error
	// instead of only logging it. The pool runs its attach and detach
	// hooks after the operation has completed and ignores that error, so
	// a failing mandatory hook does not undo or fail the operation.
	Mandatory bool `yaml:"mandatory"`
}

// AgentConfig holds configuration for the agent daemon
type AgentConfig struct {
	// ListenAddr is the admin HTTP listen address
	ListenAddr string `yaml:"listen_addr"`
	// GRPCAddr is the gRPC health service listen address
	GRPCAddr string `yaml:"grpc_addr"`
	// Pool is the pool configuration
	Pool PoolConfig `yaml:"pool"`
	// Hooks maps hook names to scripts
	Hooks map[string]HookConfig `yaml:"hooks"`
}

// DefaultAgentConfig returns default configuration for the agent
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ListenAddr: "127.0.0.1:4985",
		GRPCAddr:   "127.0.0.1:4986",
		Pool:       DefaultPoolConfig(),
		Hooks:      make(map[string]HookConfig),
	}
}
