package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/s3backup/internal/command"
	"github.com/rowjay/s3backup/internal/target"
)

var _ target.Visitor = (*probeVisitor)(nil)

type inspectExec struct {
	stdout string
	status command.Status
	args   []string
}

func (e *inspectExec) Execute(_ context.Context, step command.Step) command.Outcome {
	e.args = step.Args
	return command.Outcome{Status: e.status, Stdout: e.stdout, ExitCode: 1}
}

func testProber(exec command.Executor, missing ...string) (*Prober, *[]string) {
	var checked []string
	p := NewProber(exec)
	p.RequireBinary = func(name string) error {
		checked = append(checked, name)
		for _, m := range missing {
			if m == name {
				return fmt.Errorf("required binary not found: %s", name)
			}
		}
		return nil
	}
	p.PingPostgres = func(context.Context, target.Postgres) error { return nil }
	p.PingMySQL = func(context.Context, target.MySQL) error { return errors.New("mysql ping: refused") }
	p.PingMongo = func(context.Context, target.Mongo) error { return nil }
	return p, &checked
}

func TestCheckDirectTargets(t *testing.T) {
	p, checked := testProber(nil)
	require.NoError(t, p.Check(context.Background(), target.Postgres{}))
	assert.Equal(t, []string{"pg_dump", "psql"}, *checked)

	err := p.Check(context.Background(), target.MySQL{})
	assert.ErrorContains(t, err, "refused")

	require.NoError(t, p.Check(context.Background(), target.Mongo{}))
}

func TestCheckReportsAllProblems(t *testing.T) {
	p, _ := testProber(nil, "mysqldump")
	err := p.Check(context.Background(), target.MySQL{})
	assert.ErrorContains(t, err, "mysqldump")
	assert.ErrorContains(t, err, "refused")
}

func TestCheckContainer(t *testing.T) {
	exec := &inspectExec{stdout: "true\n", status: command.Success}
	p, _ := testProber(exec)
	require.NoError(t, p.Check(context.Background(), target.PostgresDocker{Container: "pg"}))
	assert.Equal(t, []string{"inspect", "--format", "{{.State.Running}}", "pg"}, exec.args)

	exec.stdout = "false\n"
	assert.ErrorContains(t, p.Check(context.Background(), target.MongoDocker{Container: "pg"}), "not running")

	exec.status = command.Failed
	var cmdErr *command.Error
	assert.True(t, errors.As(p.Check(context.Background(), target.MySQLDocker{Container: "pg"}), &cmdErr))
}

func TestCheckContainerWithoutDocker(t *testing.T) {
	exec := &inspectExec{status: command.Success, stdout: "true"}
	p, _ := testProber(exec, "docker")
	assert.ErrorContains(t, p.Check(context.Background(), target.PostgresDocker{Container: "pg"}), "docker")
	assert.Nil(t, exec.args)
}

func TestCheckFolder(t *testing.T) {
	p, _ := testProber(nil)
	dir := t.TempDir()
	require.NoError(t, p.Check(context.Background(), target.Folder{Path: dir}))

	assert.Error(t, p.Check(context.Background(), target.Folder{Path: filepath.Join(dir, "missing")}))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.ErrorContains(t, p.Check(context.Background(), target.Folder{Path: file}), "not a directory")
}

func TestCheckNilTarget(t *testing.T) {
	p, _ := testProber(nil)
	assert.True(t, errors.Is(p.Check(context.Background(), nil), target.ErrNoTarget))
}
