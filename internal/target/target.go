// Package target describes how each kind of data source is reached and turns
// a target into the command plan that dumps or restores it.
package target

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoTarget is returned for an element configured without a backup target.
var ErrNoTarget = errors.New("no backup target configured")

type Kind string

const (
	KindPostgres       Kind = "postgresql"
	KindPostgresDocker Kind = "postgresql_docker"
	KindMySQL          Kind = "mysql"
	KindMySQLDocker    Kind = "mysql_docker"
	KindMongo          Kind = "mongodb"
	KindMongoDocker    Kind = "mongodb_docker"
	KindFolder         Kind = "folder"
)

// Kinds lists every variant in declaration order.
var Kinds = []Kind{KindPostgres, KindPostgresDocker, KindMySQL, KindMySQLDocker, KindMongo, KindMongoDocker, KindFolder}

// Target is a closed union: only the variant types declared in this package
// implement it. Dispatch goes through Visitor, so a new variant cannot be
// added without every visitor being updated.
type Target interface {
	Kind() Kind
	// Extension of the artifact, without the leading dot.
	Extension() string
	Accept(v Visitor) error
	sealed()
}

// Visitor has one method per Target variant.
type Visitor interface {
	VisitPostgres(Postgres) error
	VisitPostgresDocker(PostgresDocker) error
	VisitMySQL(MySQL) error
	VisitMySQLDocker(MySQLDocker) error
	VisitMongo(Mongo) error
	VisitMongoDocker(MongoDocker) error
	VisitFolder(Folder) error
}

// Postgres is a PostgreSQL server reachable over the network.
type Postgres struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDocker is a PostgreSQL server running inside a local container.
type PostgresDocker struct {
	Container string
	Database  string
	User      string
	Password  string
}

type MySQL struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

type MySQLDocker struct {
	Container string
	Database  string
	User      string
	Password  string
}

// Mongo is a MongoDB server reachable over the network. Database, User and
// Password are optional; an empty Database dumps every database.
type Mongo struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

type MongoDocker struct {
	Container string
	Database  string
	User      string
	Password  string
}

// Folder is a directory tree archived with tar.
type Folder struct {
	Path string
}

func (Postgres) Kind() Kind       { return KindPostgres }
func (PostgresDocker) Kind() Kind { return KindPostgresDocker }
func (MySQL) Kind() Kind          { return KindMySQL }
func (MySQLDocker) Kind() Kind    { return KindMySQLDocker }
func (Mongo) Kind() Kind          { return KindMongo }
func (MongoDocker) Kind() Kind    { return KindMongoDocker }
func (Folder) Kind() Kind         { return KindFolder }

func (Postgres) Extension() string       { return "sql" }
func (PostgresDocker) Extension() string { return "sql" }
func (MySQL) Extension() string          { return "sql" }
func (MySQLDocker) Extension() string    { return "sql" }
func (Mongo) Extension() string          { return "gz" }
func (MongoDocker) Extension() string    { return "gz" }
func (Folder) Extension() string         { return "tar.gz" }

func (t Postgres) Accept(v Visitor) error       { return v.VisitPostgres(t) }
func (t PostgresDocker) Accept(v Visitor) error { return v.VisitPostgresDocker(t) }
func (t MySQL) Accept(v Visitor) error          { return v.VisitMySQL(t) }
func (t MySQLDocker) Accept(v Visitor) error    { return v.VisitMySQLDocker(t) }
func (t Mongo) Accept(v Visitor) error          { return v.VisitMongo(t) }
func (t MongoDocker) Accept(v Visitor) error    { return v.VisitMongoDocker(t) }
func (t Folder) Accept(v Visitor) error         { return v.VisitFolder(t) }

func (Postgres) sealed()       {}
func (PostgresDocker) sealed() {}
func (MySQL) sealed()          {}
func (MySQLDocker) sealed()    {}
func (Mongo) sealed()          {}
func (MongoDocker) sealed()    {}
func (Folder) sealed()         {}

// Element is one configured backup unit. Elements are built once from
// configuration and never mutated.
type Element struct {
	Title               string
	RemoteFolder        string
	LocalRetentionDays  int
	RemoteRetentionDays int
	// Target is nil when the configuration names none.
	Target Target
}

// TimestampLayout is the artifact timestamp format (YYYY-MM-DD_HH-MM-SS).
const TimestampLayout = "2006-01-02_15-04-05"

// ArtifactName returns "<title>-<timestamp>.<ext>".
func ArtifactName(title string, ts time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", title, ts.Format(TimestampLayout), ext)
}
