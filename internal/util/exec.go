package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// RequireBinary verifies the binary is on PATH.
func RequireBinary(name string) error {
	_, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("required binary not found: %s", name)
	}
	return nil
}

// Command builds an exec.Cmd that inherits the process environment plus env.
// Keys are appended in sorted order so the resulting environment is stable.
func Command(ctx context.Context, name string, args []string, env map[string]string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = MergeEnv(env)
	return cmd
}

// MergeEnv returns the current process environment with extra appended.
func MergeEnv(extra map[string]string) []string {
	env := append([]string{}, os.Environ()...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}
