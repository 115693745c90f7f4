package pool

import (
	"path/filepath"
	"time"

	"github.com/pkmiec/passenger/internal/config"
	"github.com/pkmiec/passenger/internal/spawningkit"
)

// SpawnMethod selects how workers are materialised
type SpawnMethod string

const (
	// SpawnMethodDirect starts each worker from scratch
	SpawnMethodDirect SpawnMethod = "direct"
	// SpawnMethodSmart forks workers off a preloader
	SpawnMethodSmart SpawnMethod = "smart"
)

// RestartFileName is the sentinel whose mtime triggers a group restart
const RestartFileName = "restart.txt"

// Options is the immutable request fingerprint: everything a caller can
// say about which application it wants a session for and how that
// application's workers should be managed. Two Options address the same
// group iff GroupName() agrees.
type Options struct {
	// AppRoot is the application root directory
	AppRoot string
	// AppGroupName overrides the derived group name; normally empty
	AppGroupName string
	// Environment is the logical environment (production, staging, ...)
	Environment string
	// User is the identity workers run as
	User string
	// SpawnMethod selects direct or preloader-based spawning
	SpawnMethod SpawnMethod
	// StartCommand is the worker start command line
	StartCommand []string
	// EnvVars are extra environment variables for workers
	EnvVars map[string]string
	// SocketDir, when non-empty, is where workers create their request
	// sockets
	SocketDir string

	// MinProcesses is the number of workers the group keeps warm
	MinProcesses int
	// MaxProcesses caps this group's worker count; 0 means bounded only
	// by the pool budget
	MaxProcesses int
	// StartTimeout bounds each spawn attempt
	StartTimeout time.Duration

	// MaxRequestQueueSize bounds the wait list; 0 means unbounded
	MaxRequestQueueSize int
	// MaxRequestQueueTime bounds wait-list dwell time; 0 means unbounded
	MaxRequestQueueTime time.Duration

	// RestartDir is the directory holding the restart sentinel; empty
	// means <AppRoot>/tmp
	RestartDir string

	// StickySessionID, when non-zero, asks routing to prefer the worker
	// whose sticky counter matches
	StickySessionID uint32
}

// GroupName derives the group identity key. It is a pure function of the
// stable subset of the fields: app root (or its explicit override),
// environment and user. Sizing, queueing and sticky fields deliberately
// do not participate, so differently tuned requests for one application
// still land in one group.
func (o Options) GroupName() string {
	if o.AppGroupName != "" {
		return o.AppGroupName
	}
	name := o.AppRoot
	if o.Environment != "" {
		name += " (" + o.Environment + ")"
	}
	if o.User != "" {
		name += " [" + o.User + "]"
	}
	return name
}

// RestartFilePath is the sentinel path polled for restart requests
func (o Options) RestartFilePath() string {
	dir := o.RestartDir
	if dir == "" {
		dir = filepath.Join(o.AppRoot, "tmp")
	}
	return filepath.Join(dir, RestartFileName)
}

// withDefaults fills unset MinProcesses and StartTimeout from the
// defaults in internal/config
func (o Options) withDefaults() Options {
	if o.MinProcesses <= 0 {
		o.MinProcesses = config.DefaultMinProcesses
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = config.DefaultStartTimeout
	}
	return o
}

// appSpec renders the options as the spawning kit's input
func (o Options) appSpec() spawningkit.AppSpec {
	return spawningkit.AppSpec{
		AppRoot:      o.AppRoot,
		StartCommand: o.StartCommand,
		Environment:  o.Environment,
		EnvVars:      o.EnvVars,
		User:         o.User,
		SocketPath:   o.SocketDir,
		StartTimeout: o.StartTimeout,
	}
}
