package target

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const restoreArtifact = "/restore/db/nightly-2024-03-05_10-20-30.sql"

func TestPlanRestorePerVariant(t *testing.T) {
	for _, tgt := range allVariants() {
		t.Run(string(tgt.Kind()), func(t *testing.T) {
			plan, err := PlanRestore(tgt, testEl, restoreArtifact)
			require.NoError(t, err)
			require.NotEmpty(t, plan.Steps)
			assert.Equal(t, restoreArtifact, plan.Artifact)

			var refs int
			for _, step := range plan.Steps {
				flat := flatten(step)
				refs += strings.Count(flat, restoreArtifact)
				for _, arg := range step.Args {
					assert.NotContains(t, arg, tPassword)
				}
			}
			assert.Equal(t, 1, refs, "artifact must be consumed exactly once")
		})
	}
}

func TestPlanRestoreSQLReadsStdin(t *testing.T) {
	plan, err := PlanRestore(allVariants()[2], testEl, restoreArtifact)
	require.NoError(t, err)
	step := plan.Steps[0]
	assert.Equal(t, "mysql", step.Program)
	assert.Equal(t, restoreArtifact, step.StdinPath)
	assert.Equal(t, map[string]string{"MYSQL_PWD": tPassword}, step.Env)
}

func TestPlanRestoreMongoDocker(t *testing.T) {
	plan, err := PlanRestore(MongoDocker{Container: tContainer, Database: tDatabase}, testEl, "/restore/db/x.gz")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []string{"cp", "/restore/db/x.gz", tContainer + ":/tmp/x.gz"}, plan.Steps[0].Args)
	assert.Equal(t, []string{"exec", tContainer, "mongorestore", "--nsInclude", tDatabase + ".*", "--drop", "--archive=/tmp/x.gz", "--gzip"}, plan.Steps[1].Args)
	assert.True(t, plan.Steps[2].Optional)
}

func TestPlanRestoreFolderCreatesDestination(t *testing.T) {
	plan, err := PlanRestore(Folder{Path: tPath}, testEl, "/restore/files/x.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{tPath}, plan.Dirs)
	assert.Equal(t, []string{"-xzf", "/restore/files/x.tar.gz", "-C", tPath}, plan.Steps[0].Args)
}

func TestPlanRestoreNilTarget(t *testing.T) {
	_, err := PlanRestore(nil, testEl, restoreArtifact)
	assert.True(t, errors.Is(err, ErrNoTarget))
}
