package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/am-lens/bundlectl/internal/config"
)

// Normalized client names.
const (
	ClientSQLite   = "sqlite"
	ClientPostgres = "pgx"
	ClientMySQL    = "mysql"
)

const SQLiteMemoryOnlyDSN = "file::memory:?cache=shared"

var clientAliases = map[string]string{
	"":               ClientSQLite,
	"sqlite3":        ClientSQLite,
	"sqlite":         ClientSQLite,
	"better-sqlite3": ClientSQLite,
	"pg":             ClientPostgres,
	"postgres":       ClientPostgres,
	"postgresql":     ClientPostgres,
	"pgx":            ClientPostgres,
	"mysql":          ClientMySQL,
	"mysql2":         ClientMySQL,
}

// ConnectionConfig is a resolved database connection: the driver to use and
// the data source it connects to. For SQLite, Target is a file name.
type ConnectionConfig struct {
	Client       string
	Target       string
	NullDefaults bool
}

func (c ConnectionConfig) IsZero() bool {
	return c == ConnectionConfig{}
}

// Redacted returns Target with any password masked.
func (c ConnectionConfig) Redacted() string {
	switch c.Client {
	case ClientPostgres:
		if u, err := url.Parse(c.Target); err == nil && u.Scheme != "" {
			return u.Redacted()
		}
	case ClientMySQL:
		if cfg, err := mysqldriver.ParseDSN(c.Target); err == nil && cfg.Passwd != "" {
			cfg.Passwd = "xxxxx"
			return cfg.FormatDSN()
		}
	}
	return c.Target
}

// Resolver looks up the connection of an environment.
type Resolver struct {
	databases map[string]*config.Database
	baseDir   string
}

func NewResolver(databases map[string]*config.Database) *Resolver {
	return &Resolver{databases: databases}
}

// WithBaseDir sets the directory relative SQLite file names are resolved
// against.
func (r *Resolver) WithBaseDir(dir string) *Resolver {
	r.baseDir = dir
	return r
}

func (r *Resolver) Environments() []string {
	envs := make([]string, 0, len(r.databases))
	for env := range r.databases {
		envs = append(envs, env)
	}
	slices.Sort(envs)
	return envs
}

// Resolve returns the connection of env. On failure the returned
// ConnectionConfig is always the zero value.
func (r *Resolver) Resolve(env string) (ConnectionConfig, error) {
	db, ok := r.databases[env]
	if !ok {
		return ConnectionConfig{}, config.NewError(config.UnknownEnvironment, env,
			fmt.Errorf("configured environments: %s", strings.Join(r.Environments(), ", ")))
	}

	client, ok := clientAliases[db.Client]
	if !ok {
		return ConnectionConfig{}, config.NewError(config.Invalid, env, fmt.Errorf("unsupported client %q", db.Client))
	}

	var (
		target string
		err    error
	)
	switch client {
	case ClientSQLite:
		target, err = r.sqliteTarget(db.Connection)
	case ClientPostgres:
		target, err = postgresTarget(db.Connection)
	case ClientMySQL:
		target, err = mysqlTarget(db.Connection)
	}
	if err != nil {
		return ConnectionConfig{}, config.NewError(config.Invalid, env, err)
	}

	return ConnectionConfig{
		Client:       client,
		Target:       target,
		NullDefaults: db.UseNullAsDefault,
	}, nil
}

func (r *Resolver) sqliteTarget(c config.Connection) (string, error) {
	if c.Host != "" || c.User != "" || c.Port != 0 {
		return "", errors.New("sqlite connections only take a filename")
	}

	name := os.ExpandEnv(c.Filename)
	if name == "" {
		name = os.ExpandEnv(c.DSN)
	}

	switch {
	case name == "":
		return SQLiteMemoryOnlyDSN, nil
	case name == ":memory:" || strings.HasPrefix(name, "file:"):
		return name, nil
	case filepath.IsAbs(name):
		return filepath.Clean(name), nil
	}

	base, err := filepath.Abs(r.baseDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, name), nil
}

func postgresTarget(c config.Connection) (string, error) {
	if c.Filename != "" {
		return "", errors.New("filename is only supported by sqlite connections")
	}
	if c.DSN != "" {
		return os.ExpandEnv(c.DSN), nil
	}
	if c.Host == "" {
		return "", errors.New("connection needs a dsn or a host")
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   hostPort(os.ExpandEnv(c.Host), c.Port),
		Path:   "/" + os.ExpandEnv(c.Database),
	}
	if user := os.ExpandEnv(c.User); user != "" {
		if password := os.ExpandEnv(c.Password); password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String(), nil
}

func mysqlTarget(c config.Connection) (string, error) {
	if c.Filename != "" {
		return "", errors.New("filename is only supported by sqlite connections")
	}
	if c.DSN != "" {
		return os.ExpandEnv(c.DSN), nil
	}
	if c.Host == "" {
		return "", errors.New("connection needs a dsn or a host")
	}

	cfg := mysqldriver.NewConfig()
	cfg.User = os.ExpandEnv(c.User)
	cfg.Passwd = os.ExpandEnv(c.Password)
	cfg.Net = "tcp"
	cfg.Addr = hostPort(os.ExpandEnv(c.Host), c.Port)
	cfg.DBName = os.ExpandEnv(c.Database)
	return cfg.FormatDSN(), nil
}

func hostPort(host string, port int) string {
	if port == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
