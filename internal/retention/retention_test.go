package retention

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestSweepLocalBoundary(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.Local)

	exact := touch(t, dir, "app-2024-01-10_12-00-00.sql")    // exactly 7 days
	older := touch(t, dir, "app-2024-01-09_12-00-00.sql")    // 8 days
	justOver := touch(t, dir, "app-2024-01-10_11-59-59.sql") // 7 days and 1s
	fresh := touch(t, dir, "app-2024-01-17_11-00-00.sql")

	deleted, err := SweepLocal(dir, "app", 7, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{older, justOver}, deleted)
	assert.FileExists(t, exact)
	assert.FileExists(t, fresh)
	assert.NoFileExists(t, older)
}

func TestSweepLocalSkipsForeignAndMalformed(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.Local)

	other := touch(t, dir, "other-2020-01-01_00-00-00.sql")
	garbage := touch(t, dir, "app-notatime.sql")
	noDash := touch(t, dir, "app2020-01-01_00-00-00.sql")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app-2020-01-01_00-00-00.d"), 0o750))
	multiExt := touch(t, dir, "app-2020-01-01_00-00-00.tar.gz")

	deleted, err := SweepLocal(dir, "app", 1, now)
	require.NoError(t, err)
	assert.Equal(t, []string{multiExt}, deleted)
	assert.FileExists(t, other)
	assert.FileExists(t, garbage)
	assert.FileExists(t, noDash)
	assert.DirExists(t, filepath.Join(dir, "app-2020-01-01_00-00-00.d"))
}

func TestSweepLocalZeroRetentionDeletesAnythingOlderThanNow(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.Local)
	same := touch(t, dir, "app-2024-01-17_12-00-00.sql")
	prev := touch(t, dir, "app-2024-01-17_11-59-59.sql")

	deleted, err := SweepLocal(dir, "app", 0, now)
	require.NoError(t, err)
	assert.Equal(t, []string{prev}, deleted)
	assert.FileExists(t, same)
}

func TestSweepLocalMissingDir(t *testing.T) {
	_, err := SweepLocal(filepath.Join(t.TempDir(), "missing"), "app", 1, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseArtifactTime(t *testing.T) {
	ts, ok := ParseArtifactTime("my-app-2024-03-05_10-20-30.tar.gz", "my-app")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 20, 30, 0, time.Local), ts)

	_, ok = ParseArtifactTime("my-app-2024-13-05_10-20-30.sql", "my-app")
	assert.False(t, ok)
}

func TestExpired(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.False(t, Expired(now.AddDate(0, 0, -3), now, 3))
	assert.True(t, Expired(now.AddDate(0, 0, -3).Add(-time.Second), now, 3))
}

func TestExpiredHugeRetentionKeepsEverything(t *testing.T) {
	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	for _, days := range []int{maxDays, maxDays + 1, 200000, math.MaxInt} {
		assert.False(t, Expired(now.Add(-time.Hour), now, days), "days=%d", days)
		assert.False(t, Expired(time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), now, days), "days=%d", days)
	}
}

func TestSweepLocalHugeRetention(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.Local)
	fresh := touch(t, dir, "app-2024-01-17_11-00-00.sql")
	old := touch(t, dir, "app-2000-01-01_00-00-00.sql")

	deleted, err := SweepLocal(dir, "app", 200000, now)
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.FileExists(t, fresh)
	assert.FileExists(t, old)
}
