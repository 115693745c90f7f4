package hooks

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/gravitational/trace"

	"github.com/pkmiec/passenger/internal/config"
)

// Runner executes configured hook scripts. Hook options are passed to the
// script as HOOK_* environment variables.
type Runner struct {
	logger *slog.Logger
	hooks  map[string]config.HookConfig
}

// NewRunner creates a hook runner for the given hook configuration
func NewRunner(logger *slog.Logger, hooks map[string]config.HookConfig) *Runner {
	return &Runner{
		logger: logger.With("component", "hooks"),
		hooks:  hooks,
	}
}

// Run executes the hook registered under name, if any. A non-zero exit is
// logged and swallowed unless the hook is declared mandatory, in which
// case the error is returned to the caller.
func (r *Runner) Run(ctx context.Context, name string, options map[string]string) error {
	hook, ok := r.hooks[name]
	if !ok || hook.Command == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", hook.Command)
	cmd.Env = append(os.Environ(), hookEnviron(name, options)...)

	output, err := cmd.CombinedOutput()
	if err == nil {
		r.logger.Debug("Hook script succeeded", "hook", name, "command", hook.Command)
		return nil
	}

	r.logger.Warn("Hook script failed",
		"hook", name,
		"command", hook.Command,
		"mandatory", hook.Mandatory,
		"output", strings.TrimSpace(string(output)),
		"error", err,
	)
	if hook.Mandatory {
		return trace.Wrap(err, "mandatory hook %q failed", name)
	}
	return nil
}

// hookEnviron renders hook options as HOOK_* variables, sorted for
// deterministic child environments.
func hookEnviron(name string, options map[string]string) []string {
	env := make([]string, 0, len(options)+1)
	env = append(env, "HOOK_NAME="+name)
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, "HOOK_"+strings.ToUpper(k)+"="+options[k])
	}
	return env
}
