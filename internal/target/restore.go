package target

import (
	"fmt"
	"path/filepath"

	"github.com/rowjay/s3backup/internal/command"
)

// PlanRestore builds the commands that load artifact back into t. Each plan
// is the inverse of the corresponding backup plan: SQL dumps are replayed
// through the client, mongo archives go through mongorestore and folder
// archives are extracted over the source path.
func PlanRestore(t Target, el Element, artifact string) (Plan, error) {
	if t == nil {
		return Plan{}, fmt.Errorf("element %s: %w", el.Title, ErrNoTarget)
	}
	r := &restorePlanner{plan: Plan{Artifact: artifact}}
	if err := t.Accept(r); err != nil {
		return Plan{}, err
	}
	return r.plan, nil
}

type restorePlanner struct {
	plan Plan
}

func (r *restorePlanner) add(step command.Step) {
	r.plan.Steps = append(r.plan.Steps, step)
}

func (r *restorePlanner) VisitPostgres(t Postgres) error {
	r.add(command.Step{
		Name:    "psql",
		Program: "psql",
		Args: []string{
			"-h", hostOrDefault(t.Host),
			"-p", portOrDefault(t.Port, defaultPostgresPort),
			"-U", t.User,
			"-d", t.Database,
			"-v", "ON_ERROR_STOP=1",
			"-f", r.plan.Artifact,
		},
		Env: postgresEnv(t.Password),
	})
	return nil
}

func (r *restorePlanner) VisitPostgresDocker(t PostgresDocker) error {
	args := []string{"exec", "-i"}
	args = append(args, forwardEnv(postgresEnv(t.Password))...)
	args = append(args, t.Container, "psql", "-U", t.User, "-d", t.Database, "-v", "ON_ERROR_STOP=1")
	r.add(command.Step{
		Name:      "docker exec psql",
		Program:   "docker",
		Args:      args,
		Env:       postgresEnv(t.Password),
		StdinPath: r.plan.Artifact,
	})
	return nil
}

func (r *restorePlanner) VisitMySQL(t MySQL) error {
	r.add(command.Step{
		Name:    "mysql",
		Program: "mysql",
		Args: []string{
			"-h", hostOrDefault(t.Host),
			"-P", portOrDefault(t.Port, defaultMySQLPort),
			"-u", t.User,
			t.Database,
		},
		Env:       mysqlEnv(t.Password),
		StdinPath: r.plan.Artifact,
	})
	return nil
}

func (r *restorePlanner) VisitMySQLDocker(t MySQLDocker) error {
	args := []string{"exec", "-i"}
	args = append(args, forwardEnv(mysqlEnv(t.Password))...)
	args = append(args, t.Container, "mysql", "-u", t.User, t.Database)
	r.add(command.Step{
		Name:      "docker exec mysql",
		Program:   "docker",
		Args:      args,
		Env:       mysqlEnv(t.Password),
		StdinPath: r.plan.Artifact,
	})
	return nil
}

func (r *restorePlanner) VisitMongo(t Mongo) error {
	args := []string{"--host", hostOrDefault(t.Host), "--port", portOrDefault(t.Port, defaultMongoPort)}
	args = append(args, mongoRestoreArgs(t.Database, t.User)...)
	args = append(args, "--archive="+r.plan.Artifact, "--gzip")
	r.add(command.Step{
		Name:    "mongorestore",
		Program: "mongorestore",
		Args:    args,
		Stdin:   mongoStdin(t.User, t.Password),
	})
	return nil
}

func (r *restorePlanner) VisitMongoDocker(t MongoDocker) error {
	scratch := containerScratchDir + "/" + filepath.Base(r.plan.Artifact)
	stdin := mongoStdin(t.User, t.Password)

	r.add(command.Step{
		Name:    "docker cp",
		Program: "docker",
		Args:    []string{"cp", r.plan.Artifact, t.Container + ":" + scratch},
	})
	args := []string{"exec"}
	if stdin != "" {
		args = append(args, "-i")
	}
	args = append(args, t.Container, "mongorestore")
	args = append(args, mongoRestoreArgs(t.Database, t.User)...)
	args = append(args, "--archive="+scratch, "--gzip")
	r.add(command.Step{Name: "docker exec mongorestore", Program: "docker", Args: args, Stdin: stdin})
	r.add(command.Step{
		Name:     "docker exec rm",
		Program:  "docker",
		Args:     []string{"exec", t.Container, "rm", "-f", scratch},
		Optional: true,
	})
	return nil
}

func (r *restorePlanner) VisitFolder(t Folder) error {
	r.plan.Dirs = append(r.plan.Dirs, t.Path)
	r.add(command.Step{
		Name:    "tar",
		Program: "tar",
		Args:    []string{"-xzf", r.plan.Artifact, "-C", t.Path},
	})
	return nil
}

func mongoRestoreArgs(database, user string) []string {
	var args []string
	if user != "" {
		args = append(args, "--username", user, "--authenticationDatabase", mongoAuthDatabase)
	}
	if database != "" {
		args = append(args, "--nsInclude", database+".*")
	}
	return append(args, "--drop")
}
