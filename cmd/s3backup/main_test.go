package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRootWithoutSubcommandFails(t *testing.T) {
	assert.Error(t, run())
}

func TestUnknownSubcommandFails(t *testing.T) {
	assert.Error(t, run("frobnicate"))
}

func TestBackupRejectsPositionalArgs(t *testing.T) {
	assert.Error(t, run("backup", "extra"))
}

func TestVersion(t *testing.T) {
	assert.NoError(t, run("version"))
}

func TestBackupWithMissingConfigFails(t *testing.T) {
	err := run("backup", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestListFilesystemConfig(t *testing.T) {
	dir := t.TempDir()
	bucket := filepath.Join(dir, "bucket")
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(bucket, 0o750))
	require.NoError(t, os.MkdirAll(src, 0o750))

	cfgPath := filepath.Join(dir, "s3backup.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
backup_dir: `+filepath.Join(dir, "staging")+`
remote:
  driver: filesystem
  local_path: `+bucket+`
elements:
  - title: site
    remote_folder: site
    target:
      type: folder
      path: `+src+`
`), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"list", "--config", cfgPath, "--log-level", "error"})
	assert.NoError(t, cmd.Execute())
}
