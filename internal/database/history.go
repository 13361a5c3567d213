package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/achille-roussel/sqlrange"

	"github.com/am-lens/bundlectl/internal/migrations"
)

// Record is one bundler run recorded in the history table.
type Record struct {
	ID          int64     `json:"id"`
	Environment string    `json:"environment,omitempty"`
	PlanDigest  string    `json:"plan_digest"`
	Entries     int       `json:"entries"`
	Warnings    int       `json:"warnings"`
	OutputRoot  string    `json:"output_root,omitempty"`
	BuiltAt     time.Time `json:"built_at"`
}

type buildRow struct {
	ID          int64          `sql:"id"`
	Environment sql.NullString `sql:"environment"`
	PlanDigest  string         `sql:"plan_digest"`
	Entries     int64          `sql:"entries"`
	Warnings    int64          `sql:"warnings"`
	OutputRoot  sql.NullString `sql:"output_root"`
	BuiltAt     string         `sql:"built_at"`
}

func (r buildRow) build() (Record, error) {
	t, err := time.Parse(time.RFC3339Nano, r.BuiltAt)
	if err != nil {
		return Record{}, fmt.Errorf("%w: built_at %q: %v", ErrInvalidRecord, r.BuiltAt, err)
	}
	return Record{
		ID:          r.ID,
		Environment: r.Environment.String,
		PlanDigest:  r.PlanDigest,
		Entries:     int(r.Entries),
		Warnings:    int(r.Warnings),
		OutputRoot:  r.OutputRoot.String,
		BuiltAt:     t.UTC(),
	}, nil
}

// optional maps an empty string to NULL when the connection asks for NULL
// defaults, and to the empty string otherwise.
func (d *Database) optional(s string) any {
	if s == "" && d.config.NullDefaults {
		return nil
	}
	return s
}

// RecordBuild inserts b and returns its id. A zero BuiltAt is replaced with
// the current time.
func (d *Database) RecordBuild(ctx context.Context, b Record) (int64, error) {
	if d.db == nil {
		return 0, ErrNotConnected
	}
	if b.PlanDigest == "" {
		return 0, fmt.Errorf("%w: missing plan digest", ErrInvalidRecord)
	}
	if b.BuiltAt.IsZero() {
		b.BuiltAt = time.Now()
	}

	query := fmt.Sprintf(`INSERT INTO %s (environment, plan_digest, entries, warnings, output_root, built_at) VALUES (%s)`,
		migrations.HistoryTable, strings.Join(d.args(6), ", "))
	args := []any{
		d.optional(b.Environment),
		b.PlanDigest,
		b.Entries,
		b.Warnings,
		d.optional(b.OutputRoot),
		b.BuiltAt.UTC().Format(time.RFC3339Nano),
	}

	var id int64
	err := tx1(ctx, d, func(tx *sql.Tx) error {
		if d.kind == postgres {
			return tx.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record build: %w", err)
	}

	return id, nil
}

const buildColumns = `id, environment, plan_digest, entries, warnings, output_root, built_at`

// ListBuilds returns up to limit recorded builds, newest first. A limit of
// zero or less returns all of them.
func (d *Database) ListBuilds(ctx context.Context, limit int) ([]Record, error) {
	if d.db == nil {
		return nil, ErrNotConnected
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC`, buildColumns, migrations.HistoryTable)
	var args []any
	if limit > 0 {
		query += " LIMIT " + d.arg(0)
		args = append(args, limit)
	}

	return collect(sqlrange.QueryContext[buildRow](ctx, d.db, query, args...))
}

// LatestBuild returns the most recent build of env, or ErrNotFound.
func (d *Database) LatestBuild(ctx context.Context, env string) (Record, error) {
	if d.db == nil {
		return Record{}, ErrNotConnected
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE `, buildColumns, migrations.HistoryTable)
	var args []any
	if env == "" {
		query += `environment IS NULL OR environment = ''`
	} else {
		query += `environment = ` + d.arg(0)
		args = append(args, env)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	builds, err := collect(sqlrange.QueryContext[buildRow](ctx, d.db, query, args...))
	if err != nil {
		return Record{}, err
	}
	if len(builds) == 0 {
		return Record{}, ErrNotFound
	}
	return builds[0], nil
}

func collect(rows iter.Seq2[buildRow, error]) ([]Record, error) {
	var builds []Record
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		b, err := row.build()
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, nil
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
