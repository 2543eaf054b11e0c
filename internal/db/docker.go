package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rowjay/s3backup/internal/command"
)

func containerRunning(ctx context.Context, exec command.Executor, name string) error {
	step := command.Step{
		Name:          "docker inspect",
		Program:       "docker",
		Args:          []string{"inspect", "--format", "{{.State.Running}}", name},
		CaptureStdout: true,
	}
	out := exec.Execute(ctx, step)
	if err := out.Err(step); err != nil {
		return fmt.Errorf("container %s: %w", name, err)
	}
	if strings.TrimSpace(out.Stdout) != "true" {
		return fmt.Errorf("container %s is not running", name)
	}
	return nil
}
