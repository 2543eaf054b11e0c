// Package db checks that backup targets are reachable before a batch runs.
// Direct databases are pinged with their native Go drivers; containerized
// ones are checked through the docker CLI.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rowjay/s3backup/internal/command"
	"github.com/rowjay/s3backup/internal/target"
	"github.com/rowjay/s3backup/internal/util"
)

const defaultTimeout = 10 * time.Second

// Prober runs read-only checks against targets. The function fields default
// to the real implementations and are replaced in tests.
type Prober struct {
	Exec    command.Executor
	Timeout time.Duration

	RequireBinary func(name string) error
	PingPostgres  func(ctx context.Context, t target.Postgres) error
	PingMySQL     func(ctx context.Context, t target.MySQL) error
	PingMongo     func(ctx context.Context, t target.Mongo) error
}

func NewProber(exec command.Executor) *Prober {
	return &Prober{
		Exec:          exec,
		Timeout:       defaultTimeout,
		RequireBinary: util.RequireBinary,
		PingPostgres:  pingPostgres,
		PingMySQL:     pingMySQL,
		PingMongo:     pingMongo,
	}
}

// Check verifies the tools a target's backup and restore need, then its
// reachability. All problems are reported together.
func (p *Prober) Check(ctx context.Context, t target.Target) error {
	if t == nil {
		return target.ErrNoTarget
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.Accept(&probeVisitor{ctx: ctx, p: p})
}

type probeVisitor struct {
	ctx context.Context
	p   *Prober
}

func (v *probeVisitor) binaries(names ...string) error {
	var errs []error
	for _, name := range names {
		if err := v.p.RequireBinary(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *probeVisitor) VisitPostgres(t target.Postgres) error {
	return errors.Join(v.binaries("pg_dump", "psql"), v.p.PingPostgres(v.ctx, t))
}

func (v *probeVisitor) VisitPostgresDocker(t target.PostgresDocker) error {
	return v.container(t.Container)
}

func (v *probeVisitor) VisitMySQL(t target.MySQL) error {
	return errors.Join(v.binaries("mysqldump", "mysql"), v.p.PingMySQL(v.ctx, t))
}

func (v *probeVisitor) VisitMySQLDocker(t target.MySQLDocker) error {
	return v.container(t.Container)
}

func (v *probeVisitor) VisitMongo(t target.Mongo) error {
	return errors.Join(v.binaries("mongodump", "mongorestore"), v.p.PingMongo(v.ctx, t))
}

func (v *probeVisitor) VisitMongoDocker(t target.MongoDocker) error {
	return v.container(t.Container)
}

func (v *probeVisitor) VisitFolder(t target.Folder) error {
	if err := v.binaries("tar"); err != nil {
		return err
	}
	info, err := os.Stat(t.Path)
	if err != nil {
		return fmt.Errorf("folder source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("folder source %s is not a directory", t.Path)
	}
	return nil
}

func (v *probeVisitor) container(name string) error {
	if err := v.binaries("docker"); err != nil {
		return err
	}
	return containerRunning(v.ctx, v.p.Exec, name)
}
