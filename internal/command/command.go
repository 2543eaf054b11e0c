// Package command runs external programs for backup and restore steps and
// classifies their outcome.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Status int

const (
	// Success means the program ran and exited with status 0.
	Success Status = iota
	// Failed means the program ran and exited non-zero (or was killed).
	Failed
	// SpawnError means the program could not be started at all.
	SpawnError
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case SpawnError:
		return "spawn_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Step is one program invocation. Arguments are passed as a vector, never
// through a shell, so titles, paths and names are not interpreted.
// Secrets travel in Env or Stdin, not in Args.
type Step struct {
	Name    string
	Program string
	Args    []string
	Env     map[string]string

	// Stdin is written to the program's standard input when set.
	Stdin string
	// StdinPath streams a file to standard input. Mutually exclusive with Stdin.
	StdinPath string
	// StdoutPath receives standard output (created or truncated, mode 0600).
	StdoutPath string
	// CaptureStdout keeps standard output in Outcome.Stdout.
	CaptureStdout bool

	// Optional steps may fail without failing the plan they belong to.
	Optional bool
}

// String renders the step for logs. Env and stdin contents are never shown.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.Program)
	for _, arg := range s.Args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	if s.StdinPath != "" {
		b.WriteString(" < ")
		b.WriteString(s.StdinPath)
	}
	if s.StdoutPath != "" {
		b.WriteString(" > ")
		b.WriteString(s.StdoutPath)
	}
	return b.String()
}

type Outcome struct {
	Status   Status
	ExitCode int
	Stderr   string
	Stdout   string
	Cause    error
	Duration time.Duration
}

// Err converts a non-success outcome into an *Error; it returns nil on success.
func (o Outcome) Err(step Step) error {
	if o.Status == Success {
		return nil
	}
	return &Error{
		Step:     step.Name,
		Program:  step.Program,
		Status:   o.Status,
		ExitCode: o.ExitCode,
		Stderr:   o.Stderr,
		Cause:    o.Cause,
	}
}

// Error describes a step that did not succeed.
type Error struct {
	Step     string
	Program  string
	Status   Status
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *Error) Error() string {
	var msg string
	switch e.Status {
	case SpawnError:
		msg = fmt.Sprintf("%s: could not start", e.Program)
	default:
		msg = fmt.Sprintf("%s: exit status %d", e.Program, e.ExitCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Executor runs a single step.
type Executor interface {
	Execute(ctx context.Context, step Step) Outcome
}
