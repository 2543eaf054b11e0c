// Package schedule runs a job on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse validates a five-field cron expression or descriptor such as @daily.
func Parse(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Next returns the first activation of expr after from.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Scheduler invokes one job per tick. A tick that fires while the previous
// job is still running is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	// jobCtx is handed to every job and cancelled when Run's context ends.
	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

// New builds a scheduler. An empty timezone means local time.
func New(expr, timezone string, log zerolog.Logger, job func(ctx context.Context)) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
	}
	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := Parse(expr); err != nil {
		return nil, err
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, log: log, jobCtx: jobCtx, cancelJobs: cancel}
	if _, err := c.AddFunc(expr, func() { job(s.jobCtx) }); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Run starts the scheduler and blocks until ctx is done. A running job then
// sees its context cancelled, and Run waits for it to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info().Time("next", e.Next).Msg("scheduler started")
	}
	<-ctx.Done()
	s.cancelJobs()
	stopped := s.cron.Stop()
	s.log.Info().Msg("scheduler stopping, waiting for running job")
	<-stopped.Done()
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
