package target

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rowjay/s3backup/internal/command"
)

const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
	defaultMongoPort    = 27017
	defaultHost         = "localhost"

	// containerScratchDir holds in-container dumps before they are copied out.
	containerScratchDir = "/tmp"
	mongoAuthDatabase   = "admin"
)

// Plan is the ordered list of commands for one backup or restore.
type Plan struct {
	// Artifact is the host path the plan produces (backup) or consumes (restore).
	Artifact string
	// Dirs must exist before the first step runs.
	Dirs  []string
	Steps []command.Step
}

// PlanBackup builds the commands that dump t into stagingDir. All steps share
// the timestamp ts. The result depends only on its inputs.
func PlanBackup(t Target, el Element, ts time.Time, stagingDir string) (Plan, error) {
	if t == nil {
		return Plan{}, fmt.Errorf("element %s: %w", el.Title, ErrNoTarget)
	}
	p := &backupPlanner{
		plan: Plan{Artifact: filepath.Join(stagingDir, ArtifactName(el.Title, ts, t.Extension()))},
	}
	if err := t.Accept(p); err != nil {
		return Plan{}, err
	}
	return p.plan, nil
}

type backupPlanner struct {
	plan Plan
}

func (b *backupPlanner) add(step command.Step) {
	b.plan.Steps = append(b.plan.Steps, step)
}

func (b *backupPlanner) VisitPostgres(t Postgres) error {
	b.add(command.Step{
		Name:    "pg_dump",
		Program: "pg_dump",
		Args: []string{
			"-h", hostOrDefault(t.Host),
			"-p", portOrDefault(t.Port, defaultPostgresPort),
			"-U", t.User,
			"-f", b.plan.Artifact,
			t.Database,
		},
		Env: postgresEnv(t.Password),
	})
	return nil
}

func (b *backupPlanner) VisitPostgresDocker(t PostgresDocker) error {
	args := []string{"exec"}
	args = append(args, forwardEnv(postgresEnv(t.Password))...)
	args = append(args, t.Container, "pg_dump", "-U", t.User, t.Database)
	b.add(command.Step{
		Name:       "docker exec pg_dump",
		Program:    "docker",
		Args:       args,
		Env:        postgresEnv(t.Password),
		StdoutPath: b.plan.Artifact,
	})
	return nil
}

func (b *backupPlanner) VisitMySQL(t MySQL) error {
	b.add(command.Step{
		Name:    "mysqldump",
		Program: "mysqldump",
		Args: []string{
			"-h", hostOrDefault(t.Host),
			"-P", portOrDefault(t.Port, defaultMySQLPort),
			"-u", t.User,
			"--single-transaction",
			"--routines",
			"--triggers",
			"--result-file=" + b.plan.Artifact,
			t.Database,
		},
		Env: mysqlEnv(t.Password),
	})
	return nil
}

func (b *backupPlanner) VisitMySQLDocker(t MySQLDocker) error {
	args := []string{"exec"}
	args = append(args, forwardEnv(mysqlEnv(t.Password))...)
	args = append(args, t.Container, "mysqldump", "-u", t.User, "--single-transaction", "--routines", "--triggers", t.Database)
	b.add(command.Step{
		Name:       "docker exec mysqldump",
		Program:    "docker",
		Args:       args,
		Env:        mysqlEnv(t.Password),
		StdoutPath: b.plan.Artifact,
	})
	return nil
}

func (b *backupPlanner) VisitMongo(t Mongo) error {
	args := []string{"--host", hostOrDefault(t.Host), "--port", portOrDefault(t.Port, defaultMongoPort)}
	args = append(args, mongoArgs(t.Database, t.User)...)
	args = append(args, "--archive="+b.plan.Artifact, "--gzip")
	b.add(command.Step{
		Name:    "mongodump",
		Program: "mongodump",
		Args:    args,
		Stdin:   mongoStdin(t.User, t.Password),
	})
	return nil
}

// VisitMongoDocker dumps inside the container, then copies the archive out.
// Both steps must succeed; removing the in-container copy is best effort.
func (b *backupPlanner) VisitMongoDocker(t MongoDocker) error {
	scratch := containerScratchDir + "/" + filepath.Base(b.plan.Artifact)
	stdin := mongoStdin(t.User, t.Password)

	args := []string{"exec"}
	if stdin != "" {
		args = append(args, "-i")
	}
	args = append(args, t.Container, "mongodump")
	args = append(args, mongoArgs(t.Database, t.User)...)
	args = append(args, "--archive="+scratch, "--gzip")

	b.add(command.Step{Name: "docker exec mongodump", Program: "docker", Args: args, Stdin: stdin})
	b.add(command.Step{
		Name:    "docker cp",
		Program: "docker",
		Args:    []string{"cp", t.Container + ":" + scratch, b.plan.Artifact},
	})
	b.add(command.Step{
		Name:     "docker exec rm",
		Program:  "docker",
		Args:     []string{"exec", t.Container, "rm", "-f", scratch},
		Optional: true,
	})
	return nil
}

func (b *backupPlanner) VisitFolder(t Folder) error {
	b.add(command.Step{
		Name:    "tar",
		Program: "tar",
		Args:    []string{"-czf", b.plan.Artifact, "-C", t.Path, "."},
	})
	return nil
}

func hostOrDefault(host string) string {
	if host == "" {
		return defaultHost
	}
	return host
}

func portOrDefault(port int, def int) string {
	if port == 0 {
		return strconv.Itoa(def)
	}
	return strconv.Itoa(port)
}

func postgresEnv(password string) map[string]string {
	if password == "" {
		return nil
	}
	return map[string]string{"PGPASSWORD": password}
}

func mysqlEnv(password string) map[string]string {
	if password == "" {
		return nil
	}
	return map[string]string{"MYSQL_PWD": password}
}

// forwardEnv turns env keys into "docker exec -e KEY" flags. Without a value
// the docker client copies KEY from its own environment, keeping the secret
// off the command line.
func forwardEnv(env map[string]string) []string {
	var args []string
	for _, key := range []string{"PGPASSWORD", "MYSQL_PWD"} {
		if _, ok := env[key]; ok {
			args = append(args, "-e", key)
		}
	}
	return args
}

func mongoArgs(database, user string) []string {
	var args []string
	if database != "" {
		args = append(args, "--db", database)
	}
	if user != "" {
		args = append(args, "--username", user, "--authenticationDatabase", mongoAuthDatabase)
	}
	return args
}

// mongoStdin feeds the password to the mongo tools, which read it from a
// non-terminal stdin when --username is given without --password.
func mongoStdin(user, password string) string {
	if user == "" || password == "" {
		return ""
	}
	return password + "\n"
}
