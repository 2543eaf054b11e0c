// Package backup runs the command plans produced by package target.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/s3backup/internal/command"
	"github.com/rowjay/s3backup/internal/target"
)

type Engine struct {
	Exec command.Executor
	Log  zerolog.Logger
	// Now is overridable in tests.
	Now func() time.Time
}

func New(exec command.Executor, log zerolog.Logger) *Engine {
	return &Engine{Exec: exec, Log: log, Now: time.Now}
}

// Perform dumps el into stagingDir and returns the artifact path. The
// timestamp is resolved once, so every step of a multi-step plan agrees on
// the artifact name. On failure no artifact is left behind.
func (e *Engine) Perform(ctx context.Context, el target.Element, stagingDir string) (string, error) {
	plan, err := target.PlanBackup(el.Target, el, e.now(), stagingDir)
	if err != nil {
		return "", err
	}
	log := e.Log.With().Str("element", el.Title).Str("kind", string(el.Target.Kind())).Logger()
	log.Debug().Str("artifact", plan.Artifact).Int("steps", len(plan.Steps)).Msg("backup planned")

	if err := e.run(ctx, log, el, plan); err != nil {
		if rmErr := os.Remove(plan.Artifact); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Err(rmErr).Str("artifact", plan.Artifact).Msg("failed to remove partial artifact")
		}
		return "", err
	}
	return plan.Artifact, nil
}

// Restore loads artifact back into the element's target.
func (e *Engine) Restore(ctx context.Context, el target.Element, artifact string) error {
	plan, err := target.PlanRestore(el.Target, el, artifact)
	if err != nil {
		return err
	}
	log := e.Log.With().Str("element", el.Title).Str("kind", string(el.Target.Kind())).Logger()
	return e.run(ctx, log, el, plan)
}

func (e *Engine) run(ctx context.Context, log zerolog.Logger, el target.Element, plan target.Plan) error {
	for _, dir := range plan.Dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("element %s: create %s: %w", el.Title, dir, err)
		}
	}
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("element %s: %w", el.Title, err)
		}
		log.Debug().Str("step", step.Name).Str("cmd", step.String()).Msg("running")
		out := e.Exec.Execute(ctx, step)
		if out.Status == command.Success {
			log.Debug().Str("step", step.Name).Dur("took", out.Duration).Msg("step finished")
			continue
		}
		stepErr := out.Err(step)
		if step.Optional {
			log.Warn().Err(stepErr).Str("step", step.Name).Msg("optional step failed")
			continue
		}
		return fmt.Errorf("element %s: %w", el.Title, stepErr)
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
