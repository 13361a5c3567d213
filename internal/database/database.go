package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib" // database/sql compatible driver for pgx
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	"modernc.org/sqlite"

	bfs "github.com/am-lens/bundlectl/internal/fs"
	"github.com/am-lens/bundlectl/internal/logging"
	"github.com/am-lens/bundlectl/internal/migrations"
)

const (
	sqliteKind = iota
	postgres
	mysql
)

// Database implements the database operations. It will hide any differences between the varying SQL databases from the rest of the codebase.
type Database struct {
	db     *sql.DB
	config ConnectionConfig
	kind   int
	log    *logging.Logger
}

func (d *Database) DB() *sql.DB {
	return d.db
}

func (d *Database) Dialect() (string, error) {
	switch d.kind {
	case sqliteKind:
		return "sqlite", nil
	case postgres:
		return "postgresql", nil
	case mysql:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unknown kind: %d", d.kind)
	}
}

func (d *Database) WithConfig(config ConnectionConfig) *Database {
	d.config = config
	return d
}

func (d *Database) WithLogger(log *logging.Logger) *Database {
	d.log = log
	return d
}

// InitDB opens the configured connection. Without a configuration, an
// in-memory SQLite database is used. Statements are logged at debug level.
func (d *Database) InitDB(ctx context.Context) error {
	var (
		drv driver.Driver
		dsn = d.config.Target
	)

	switch d.config.Client {
	case ClientSQLite, "":
		if dsn == "" {
			dsn = SQLiteMemoryOnlyDSN
		}
		d.kind = sqliteKind
		drv = &sqlite.Driver{}

	case ClientPostgres:
		d.kind = postgres
		drv = stdlib.GetDefaultDriver()

	case ClientMySQL:
		if _, err := mysqldriver.ParseDSN(dsn); err != nil {
			return err
		}
		d.kind = mysql
		drv = &mysqldriver.MySQLDriver{}

	default:
		return fmt.Errorf("unsupported database client %q", d.config.Client)
	}

	d.db = sqldblogger.OpenDriver(dsn, drv, zerologadapter.New(d.log.Zerolog()),
		sqldblogger.WithExecerLevel(sqldblogger.LevelDebug),
		sqldblogger.WithQueryerLevel(sqldblogger.LevelDebug),
		sqldblogger.WithPreparerLevel(sqldblogger.LevelDebug),
	)

	if err := d.db.PingContext(ctx); err != nil {
		_ = d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to connect to %s database: %w", d.config.Client, err)
	}

	if d.kind == sqliteKind {
		// One writer at a time; concurrent writers would fail with SQLITE_BUSY.
		d.db.SetMaxOpenConns(1)
	}

	d.log.Debugf("connected to %s database %s", d.config.Client, d.config.Redacted())
	return nil
}

func (d *Database) CloseDB() {
	if d.db != nil {
		_ = d.db.Close()
	}
}

// Migrate brings the schema up to date.
func (d *Database) Migrate(ctx context.Context) error {
	dialect, err := d.Dialect()
	if err != nil {
		return err
	}

	fsys, err := migrations.Migrations(dialect)
	if err != nil {
		return err
	}
	if ups, err := bfs.Glob(fsys, "*.up.sql"); err != nil {
		return err
	} else if len(ups) == 0 {
		return fmt.Errorf("no migrations for %s", dialect)
	}

	src, err := iofs.New(fsys, ".")
	if err != nil {
		return err
	}

	var target migratedb.Driver
	switch d.kind {
	case sqliteKind:
		target, err = migratesqlite.WithInstance(d.db, &migratesqlite.Config{})
	case postgres:
		target, err = migratepgx.WithInstance(d.db, &migratepgx.Config{})
	case mysql:
		target, err = migratemysql.WithInstance(d.db, &migratemysql.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, target)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	// NB: m.Close() would close d.db as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	d.log.Debugf("database schema at version %d (dirty: %v)", version, dirty)
	return ctx.Err()
}

func (d *Database) arg(i int) string {
	if d.kind == postgres {
		return "$" + strconv.Itoa(i+1)
	}
	return "?"
}

func (d *Database) args(n int) []string {
	args := make([]string, n)
	for i := range n {
		args[i] = d.arg(i)
	}

	return args
}

func tx1(ctx context.Context, db *Database, f func(*sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := f(tx); err != nil {
		return err
	}

	return tx.Commit()
}
