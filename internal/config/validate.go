package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/rowjay/s3backup/internal/target"
	"github.com/rowjay/s3backup/internal/util"
)

var validate = validator.New()

func init() {
	validate.RegisterValidation("pathcomponent", func(fl validator.FieldLevel) bool {
		return util.CheckPathComponent(fl.Field().String()) == nil
	})
}

// Validate checks field constraints and the per-type target requirements.
// A missing target type is allowed here; such an element fails at backup
// time with target.ErrNoTarget.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	var errs []error
	for _, el := range cfg.ElementConfigs {
		if err := validateTarget(el.Target); err != nil {
			errs = append(errs, fmt.Errorf("element %s: %w", el.Title, err))
		}
	}
	return errors.Join(errs...)
}

func validateTarget(t TargetConfig) error {
	var missing []string
	need := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	forbid := func(name, value string) error {
		if value != "" {
			return fmt.Errorf("target type %s does not take %s", t.Type, name)
		}
		return nil
	}

	switch target.Kind(t.Type) {
	case "":
		return nil
	case target.KindPostgres, target.KindMySQL:
		need("db_name", t.DBName)
		need("user", t.User)
		if err := forbid("container", t.Container); err != nil {
			return err
		}
	case target.KindPostgresDocker, target.KindMySQLDocker:
		need("container", t.Container)
		need("db_name", t.DBName)
		need("user", t.User)
		if err := forbid("host", t.Host); err != nil {
			return err
		}
	case target.KindMongo:
		if err := forbid("container", t.Container); err != nil {
			return err
		}
	case target.KindMongoDocker:
		need("container", t.Container)
		if err := forbid("host", t.Host); err != nil {
			return err
		}
	case target.KindFolder:
		need("path", t.Path)
	default:
		return fmt.Errorf("unknown target type %q", t.Type)
	}
	if len(missing) > 0 {
		return fmt.Errorf("target type %s requires %v", t.Type, missing)
	}
	return nil
}

// Elements converts the configured elements into their runtime form, in
// configuration order.
func (c *Config) Elements() []target.Element {
	out := make([]target.Element, 0, len(c.ElementConfigs))
	for _, el := range c.ElementConfigs {
		out = append(out, target.Element{
			Title:               el.Title,
			RemoteFolder:        el.RemoteFolder,
			LocalRetentionDays:  el.LocalRetentionDays,
			RemoteRetentionDays: el.RemoteRetentionDays,
			Target:              el.Target.Target(),
		})
	}
	return out
}

// Target builds the typed target, or nil when no type is configured.
func (t TargetConfig) Target() target.Target {
	switch target.Kind(t.Type) {
	case target.KindPostgres:
		return target.Postgres{Host: t.Host, Port: t.Port, Database: t.DBName, User: t.User, Password: t.Password}
	case target.KindPostgresDocker:
		return target.PostgresDocker{Container: t.Container, Database: t.DBName, User: t.User, Password: t.Password}
	case target.KindMySQL:
		return target.MySQL{Host: t.Host, Port: t.Port, Database: t.DBName, User: t.User, Password: t.Password}
	case target.KindMySQLDocker:
		return target.MySQLDocker{Container: t.Container, Database: t.DBName, User: t.User, Password: t.Password}
	case target.KindMongo:
		return target.Mongo{Host: t.Host, Port: t.Port, Database: t.DBName, User: t.User, Password: t.Password}
	case target.KindMongoDocker:
		return target.MongoDocker{Container: t.Container, Database: t.DBName, User: t.User, Password: t.Password}
	case target.KindFolder:
		return target.Folder{Path: t.Path}
	default:
		return nil
	}
}
