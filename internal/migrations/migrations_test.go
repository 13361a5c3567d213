package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMigrations(t *testing.T) {
	for _, tc := range []struct {
		dialect string
		exp     string
	}{
		{
			dialect: "sqlite",
			exp:     "CREATE TABLE IF NOT EXISTS build_history (id INTEGER, environment TEXT, plan_digest TEXT NOT NULL, entries INTEGER NOT NULL, warnings INTEGER NOT NULL DEFAULT 0, output_root TEXT, built_at TEXT NOT NULL, CONSTRAINT bundlectl_v1_build_history_id_pkey PRIMARY KEY (id))",
		},
		{
			dialect: "postgresql",
			exp:     "CREATE TABLE IF NOT EXISTS build_history (id SERIAL, environment VARCHAR(255), plan_digest VARCHAR(255) NOT NULL, entries INTEGER NOT NULL, warnings INTEGER NOT NULL DEFAULT 0, output_root TEXT, built_at VARCHAR(255) NOT NULL, CONSTRAINT bundlectl_v1_build_history_id_pkey PRIMARY KEY (id))",
		},
		{
			dialect: "mysql",
			exp:     "CREATE TABLE IF NOT EXISTS build_history (id INT AUTO_INCREMENT, environment VARCHAR(255), plan_digest VARCHAR(255) NOT NULL, entries INT NOT NULL, warnings INT NOT NULL DEFAULT 0, output_root TEXT, built_at VARCHAR(255) NOT NULL, CONSTRAINT bundlectl_v1_build_history_id_pkey PRIMARY KEY (id))",
		},
	} {
		t.Run(tc.dialect, func(t *testing.T) {
			fsys, err := Migrations(tc.dialect)
			if err != nil {
				t.Fatal(err)
			}

			names, err := fs.Glob(fsys, "*.sql")
			if err != nil {
				t.Fatal(err)
			}
			exp := []string{
				"001_create_build_history.down.sql",
				"001_create_build_history.up.sql",
				"002_index_build_history.up.sql",
			}
			if diff := cmp.Diff(exp, names); diff != "" {
				t.Errorf("files (-want, +got):\n%s", diff)
			}

			bs, err := fs.ReadFile(fsys, "001_create_build_history.up.sql")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, string(bs)); diff != "" {
				t.Errorf("create table (-want, +got):\n%s", diff)
			}

			idx, err := fs.ReadFile(fsys, "002_index_build_history.up.sql")
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(idx), "CREATE INDEX bundlectl_v1_build_history_environment_built_at_idx ON build_history (environment, built_at)") {
				t.Errorf("unexpected index statement %q", idx)
			}
		})
	}
}

func TestMigrationsUnknownDialect(t *testing.T) {
	if _, err := Migrations("oracle"); err == nil {
		t.Fatal("expected error")
	}
}
