package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("version output %q does not mention %q", out.String(), version)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("serve command not registered: %v", err)
	}
	for _, flag := range []string{"config", "max", "max-idle-time", "debug"} {
		if serve.Flags().Lookup(flag) == nil {
			t.Errorf("serve command is missing the --%s flag", flag)
		}
	}
}
