// Package migrations generates the schema migrations of the build history
// store for each supported SQL dialect.
package migrations

import (
	"fmt"
	"io/fs"

	bfs "github.com/am-lens/bundlectl/internal/fs"
)

// HistoryTable records one row per bundler run.
const HistoryTable = "build_history"

var history = createSQLTable(HistoryTable).
	IntegerPrimaryKeyAutoincrementColumn("id").
	VarCharColumn("environment").
	VarCharNonNullColumn("plan_digest").
	IntegerNonNullColumn("entries").
	IntegerNonNullDefaultColumn("warnings", 0).
	TextColumn("output_root").
	VarCharNonNullColumn("built_at").
	Index("environment", "built_at")

// Migrations returns the migration files for dialect ("sqlite",
// "postgresql" or "mysql"), named the way golang-migrate expects them.
func Migrations(dialect string) (fs.FS, error) {
	kind, err := kindOf(dialect)
	if err != nil {
		return nil, err
	}

	m := map[string]string{
		fmt.Sprintf("001_create_%s.up.sql", history.name):   history.SQL(kind),
		fmt.Sprintf("001_create_%s.down.sql", history.name): fmt.Sprintf("DROP TABLE %s", history.name),
	}
	for i, stmt := range history.IndexSQL(kind) {
		m[fmt.Sprintf("%03d_index_%s.up.sql", i+2, history.name)] = stmt
	}

	return bfs.MapFS(m), nil
}
