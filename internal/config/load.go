package config

import (
	"os"
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by ApplyEnv
const (
	EnvListenAddr  = "PASSENGER_LISTEN_ADDR"
	EnvGRPCAddr    = "PASSENGER_GRPC_ADDR"
	EnvMax         = "PASSENGER_MAX"
	EnvMaxIdleTime = "PASSENGER_MAX_IDLE_TIME"
)

// LoadFile reads an agent configuration file, layered over the defaults.
// An empty path yields the defaults unchanged; a path naming a file that
// does not exist is a NotFound error.
func LoadFile(path string) (AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, trace.NotFound("config file %q does not exist", path)
		}
		return cfg, trace.ConvertSystemError(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, trace.Wrap(err, "parsing config file %q", path)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variable overrides onto cfg. Unparseable
// values are reported rather than silently ignored.
func ApplyEnv(cfg *AgentConfig) error {
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvGRPCAddr); v != "" {
		cfg.GRPCAddr = v
	}
	if v := os.Getenv(EnvMax); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return trace.BadParameter("%s: %q is not an integer", EnvMax, v)
		}
		cfg.Pool.Max = n
	}
	if v := os.Getenv(EnvMaxIdleTime); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return trace.BadParameter("%s: %q is not a duration", EnvMaxIdleTime, v)
		}
		cfg.Pool.MaxIdleTime = d
	}
	return nil
}
