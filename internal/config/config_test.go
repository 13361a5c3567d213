package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	"github.com/am-lens/bundlectl/internal/config"
)

const webpackLike = `{
	build: {
		entry: {
			app: ./src/app.js,
			custom: ./src/custom.js
		},
		output: {
			path: public/dist,
			filename: "[name].bundle.js"
		},
		rules: [
			{test: '/\.js$/', exclude: '/(node_modules)/', loader: babel-loader}
		],
		plugins: [
			{resource: '/^\.\/locale$/', context: '/moment$/'}
		],
		performance: {
			max_entrypoint_size: 1024000,
			max_asset_size: 1024000
		},
		devtool: source-map,
		stats: {colors: true}
	},
	databases: {
		development: {
			client: sqlite3,
			connection: {filename: ./db.sqlite3},
			use_null_as_default: true
		},
		production: {
			client: pg,
			connection: "postgres://app@db/app"
		},
		test: null
	},
	overlays: {
		production: [
			{op: replace, path: /devtool, value: none},
			{op: add, path: /entry/admin, value: ./src/admin.js}
		]
	}
}`

func TestParseBuild(t *testing.T) {
	cfg, err := config.Parse([]byte(webpackLike))
	if err != nil {
		t.Fatal(err)
	}

	b := cfg.Build
	exp := []config.Entry{
		{Name: "app", Source: "./src/app.js"},
		{Name: "custom", Source: "./src/custom.js"},
	}
	if diff := cmp.Diff(exp, b.Entries.All()); diff != "" {
		t.Errorf("entries (-want, +got):\n%s", diff)
	}

	if b.Devtool != config.SourceMapExternal {
		t.Errorf("expected devtool alias to resolve to %q, got %q", config.SourceMapExternal, b.Devtool)
	}
	if b.Plugins[0].Kind != config.PluginKindIgnoreModule {
		t.Errorf("expected default plugin kind, got %q", b.Plugins[0].Kind)
	}
	if b.Output.Filename != "[name].bundle.js" || b.Output.Path != "public/dist" {
		t.Errorf("unexpected output: %+v", b.Output)
	}
	if !b.Stats.Colors {
		t.Error("expected colors")
	}

	if cfg.Databases["test"] == nil || cfg.Databases["test"].Name != "test" {
		t.Errorf("expected empty database for test environment, got %+v", cfg.Databases["test"])
	}
	if got := cfg.Databases["production"].Connection.DSN; got != "postgres://app@db/app" {
		t.Errorf("expected connection string, got %q", got)
	}
	if got := cfg.Databases["development"].Connection.Filename; got != "./db.sqlite3" {
		t.Errorf("expected connection filename, got %q", got)
	}

	if diff := cmp.Diff([]string{"development", "production", "test"}, cfg.Environments()); diff != "" {
		t.Errorf("environments (-want, +got):\n%s", diff)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`{build: {entry: ./src/index.js}}`))
	if err != nil {
		t.Fatal(err)
	}

	b := cfg.Build
	if diff := cmp.Diff([]config.Entry{{Name: "main", Source: "./src/index.js"}}, b.Entries.All()); diff != "" {
		t.Errorf("entries (-want, +got):\n%s", diff)
	}
	if b.Output.Path != config.DefaultOutputPath || b.Output.Filename != config.DefaultFilename {
		t.Errorf("unexpected output defaults: %+v", b.Output)
	}
	if b.Performance.MaxAssetSize != config.DefaultBudgetBytes || b.Performance.MaxEntrypointSize != config.DefaultBudgetBytes {
		t.Errorf("unexpected budget defaults: %+v", b.Performance)
	}
	if b.Devtool != config.SourceMapNone {
		t.Errorf("expected no source maps by default, got %q", b.Devtool)
	}
}

func TestParseDuplicateEntry(t *testing.T) {
	_, err := config.Parse([]byte(`
build:
  entry:
    app: ./src/app.js
    custom: ./src/custom.js
    app: ./src/other.js
`))
	if !errors.Is(err, config.ErrDuplicateEntryName) {
		t.Fatalf("expected duplicate entry name error, got %v", err)
	}
	if !strings.Contains(err.Error(), `"app"`) {
		t.Fatalf("expected error to name the entry, got %v", err)
	}
}

func TestParseSchemaErrors(t *testing.T) {
	for _, tc := range []struct {
		note string
		cfg  string
	}{
		{note: "unknown build key", cfg: `{build: {entry: {a: ./a.js}, mode: production}}`},
		{note: "unknown client", cfg: `{databases: {development: {client: oracle}}}`},
		{note: "unknown devtool", cfg: `{build: {entry: {a: ./a.js}, devtool: eval}}`},
		{note: "rule without loader", cfg: `{build: {entry: {a: ./a.js}, rules: [{test: '*.js'}]}}`},
		{note: "unsupported overlay op", cfg: `{overlays: {production: [{op: move, path: /devtool}]}}`},
		{note: "non-string entry", cfg: `{build: {entry: {a: [./a.js]}}}`},
	} {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.cfg))
			if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("expected invalid configuration error, got %v", err)
			}
		})
	}
}

func TestMarshallingRoundtrip(t *testing.T) {
	cfg, err := config.Parse([]byte(webpackLike))
	if err != nil {
		t.Fatal(err)
	}

	bs, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}

	cfg2, err := config.Parse(bs)
	if err != nil {
		t.Fatalf("%v\n\n%s", err, bs)
	}

	if !cfg.Build.Equal(cfg2.Build) {
		t.Fatal("expected builds to be equal")
	}

	for name, db := range cfg.Databases {
		if !db.Equal(cfg2.Databases[name]) {
			t.Fatalf("expected database %q to be equal", name)
		}
	}
}

func TestBuildFor(t *testing.T) {
	cfg, err := config.Parse([]byte(webpackLike))
	if err != nil {
		t.Fatal(err)
	}

	dev, err := cfg.BuildFor("development")
	if err != nil {
		t.Fatal(err)
	}
	if dev != cfg.Build {
		t.Fatal("expected environment without overlay to use the base build")
	}

	prod, err := cfg.BuildFor("production")
	if err != nil {
		t.Fatal(err)
	}
	if prod.Devtool != config.SourceMapNone {
		t.Errorf("expected overlay to disable source maps, got %q", prod.Devtool)
	}

	exp := []config.Entry{
		{Name: "app", Source: "./src/app.js"},
		{Name: "custom", Source: "./src/custom.js"},
		{Name: "admin", Source: "./src/admin.js"},
	}
	if diff := cmp.Diff(exp, prod.Entries.All()); diff != "" {
		t.Errorf("entries (-want, +got):\n%s", diff)
	}

	if cfg.Build.Devtool != config.SourceMapExternal || cfg.Build.Entries.Len() != 2 {
		t.Error("expected base build to be left untouched")
	}
}

func TestConnectionForms(t *testing.T) {
	for _, tc := range []struct {
		note string
		conn string
		exp  config.Connection
	}{
		{
			note: "string",
			conn: `"mysql://root@localhost/app"`,
			exp:  config.Connection{DSN: "mysql://root@localhost/app"},
		},
		{
			note: "object",
			conn: `{host: localhost, port: 5432, user: app, password: "${DB_PASSWORD}", database: app}`,
			exp:  config.Connection{Host: "localhost", Port: 5432, User: "app", Password: "${DB_PASSWORD}", Database: "app"},
		},
	} {
		t.Run(tc.note, func(t *testing.T) {
			cfg, err := config.Parse([]byte(`{databases: {development: {client: pg, connection: ` + tc.conn + `}}}`))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, cfg.Databases["development"].Connection); diff != "" {
				t.Errorf("connection (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	base := write("base.yaml", `
build:
  entry:
    zeta: ./src/zeta.js
    alpha: ./src/alpha.js
  devtool: source-map
`)
	extra := write("extra.yaml", `
build:
  entry:
    beta: ./src/beta.js
databases:
  development:
    client: sqlite3
`)
	conflicting := write("conflicting.yaml", `
build:
  devtool: inline
`)

	bs, err := config.Merge([]string{base, extra}, true)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Parse(bs)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, e := range cfg.Build.Entries.All() {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "beta"}, names); diff != "" {
		t.Errorf("entry order (-want, +got):\n%s", diff)
	}

	if _, err := config.Merge([]string{base, conflicting}, true); err == nil || !strings.Contains(err.Error(), "/build/devtool") {
		t.Fatalf("expected conflict error, got %v", err)
	}

	bs, err = config.Merge([]string{base, conflicting}, false)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err = config.Parse(bs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Build.Devtool != config.SourceMapInline {
		t.Fatalf("expected later file to win, got %q", cfg.Build.Devtool)
	}
}

func TestMergeRejectsDuplicateEntriesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	first := write("first.yaml", "build:\n  entry:\n    app: ./src/app.js\n")
	second := write("second.yaml", "build:\n  entry:\n    app: ./src/other.js\n")
	same := write("same.yaml", "build:\n  entry:\n    app: ./src/app.js\n")

	for _, tc := range []struct {
		note          string
		files         []string
		conflictError bool
	}{
		{note: "different sources", files: []string{first, second}},
		{note: "different sources, conflict check on", files: []string{first, second}, conflictError: true},
		{note: "identical declaration", files: []string{first, same}},
	} {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Merge(tc.files, tc.conflictError)
			if !errors.Is(err, config.ErrDuplicateEntryName) {
				t.Fatalf("expected duplicate entry name error, got %v", err)
			}
			var cerr *config.Error
			if !errors.As(err, &cerr) || cerr.Subject != "app" {
				t.Fatalf("expected error naming app, got %v", err)
			}
		})
	}
}

func TestMergeRejectsDuplicatesWithinFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.yaml")
	if err := os.WriteFile(path, []byte("build:\n  entry:\n    a: ./a.js\n    a: ./b.js\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Merge([]string{path}, false); !errors.Is(err, config.ErrDuplicateEntryName) {
		t.Fatalf("expected duplicate entry name error, got %v", err)
	}
}
