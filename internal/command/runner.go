package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/s3backup/internal/util"
)

const defaultMaxStderr = 64 * 1024

// Runner executes steps as child processes.
type Runner struct {
	Log zerolog.Logger
	// Timeout bounds each step. Zero means no limit.
	Timeout time.Duration
	// MaxStderr caps the captured standard error, keeping the tail.
	MaxStderr int
}

func NewRunner(log zerolog.Logger, timeout time.Duration) *Runner {
	return &Runner{Log: log, Timeout: timeout, MaxStderr: defaultMaxStderr}
}

func (r *Runner) Execute(ctx context.Context, step Step) Outcome {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := util.Command(ctx, step.Program, step.Args, step.Env)
	stderr := &tailBuffer{max: r.maxStderr()}
	cmd.Stderr = stderr

	switch {
	case step.StdinPath != "":
		in, err := os.Open(step.StdinPath)
		if err != nil {
			return Outcome{Status: SpawnError, ExitCode: -1, Cause: fmt.Errorf("open stdin: %w", err)}
		}
		defer in.Close()
		cmd.Stdin = in
	case step.Stdin != "":
		cmd.Stdin = strings.NewReader(step.Stdin)
	}

	var stdout bytes.Buffer
	var out *os.File
	switch {
	case step.StdoutPath != "":
		f, err := os.OpenFile(step.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return Outcome{Status: SpawnError, ExitCode: -1, Cause: fmt.Errorf("open stdout: %w", err)}
		}
		out = f
		cmd.Stdout = f
	case step.CaptureStdout:
		cmd.Stdout = &stdout
	}

	r.Log.Debug().Str("step", step.Name).Str("command", step.String()).Msg("executing command")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if out != nil {
			_ = out.Close()
		}
		return Outcome{Status: SpawnError, ExitCode: -1, Cause: err, Duration: time.Since(start)}
	}
	waitErr := cmd.Wait()
	outcome := Outcome{Status: Success, Stderr: stderr.String(), Stdout: stdout.String(), Duration: time.Since(start)}
	if out != nil {
		if err := out.Close(); err != nil && waitErr == nil {
			waitErr = fmt.Errorf("close stdout: %w", err)
		}
	}
	if waitErr == nil {
		return outcome
	}

	outcome.Status = Failed
	outcome.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	} else {
		outcome.Cause = waitErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome.Cause = ctxErr
	}
	return outcome
}

func (r *Runner) maxStderr() int {
	if r.MaxStderr <= 0 {
		return defaultMaxStderr
	}
	return r.MaxStderr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

var _ io.Writer = (*tailBuffer)(nil)
