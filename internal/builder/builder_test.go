package builder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/am-lens/bundlectl/internal/builder"
	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/plan"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func webpackBuild() *config.Build {
	return &config.Build{
		Entries: config.NewEntries(
			config.Entry{Name: "app", Source: "./src/app.js"},
			config.Entry{Name: "custom", Source: "./src/custom"},
		),
		Output: config.Output{Path: "public/dist", Filename: "[name].bundle.js"},
		Rules: config.Rules{
			{Test: `/\.js$/`, Exclude: "/(node_modules)/", Loader: "babel-loader"},
		},
		Plugins: config.Plugins{
			{Kind: config.PluginKindIgnoreModule, Resource: `/^\.\/locale$/`, Context: "/moment$/"},
		},
		Performance: config.Performance{MaxEntrypointSize: 1024000, MaxAssetSize: 1024000},
		Devtool:     config.SourceMapExternal,
		Stats:       config.Stats{Colors: true},
	}
}

func TestAssemble(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/app.js":          "import './custom';",
		"src/custom/index.js": "export default 1;",
	})

	p, err := builder.New().
		WithBaseDir(dir).
		WithSourceCheck(true).
		WithActions([]string{"babel-loader"}).
		Assemble(t.Context(), webpackBuild())
	if err != nil {
		t.Fatal(err)
	}

	exp := []plan.Entry{
		{Name: "app", Source: "./src/app.js"},
		{Name: "custom", Source: "./src/custom"},
	}
	if diff := cmp.Diff(exp, p.Entries()); diff != "" {
		t.Errorf("entries (-want, +got):\n%s", diff)
	}

	artifacts, err := p.Artifacts()
	if err != nil {
		t.Fatal(err)
	}
	if got := artifacts["app"]; got != filepath.Join(dir, "public", "dist", "app.bundle.js") {
		t.Errorf("unexpected artifact path %q", got)
	}

	if action, ok := p.Rules().Classify("src/app.js"); !ok || action != "babel-loader" {
		t.Errorf("unexpected classification (%q, %v)", action, ok)
	}
	if d := p.Plugins().Apply(plan.Edge{Target: "./locale", Context: "node_modules/moment"}); d != plan.Drop {
		t.Errorf("expected locale import to be dropped, got %v", d)
	}
	if p.Budget().MaxEntrypointBytes != 1024000 || p.SourceMaps() != config.SourceMapExternal || !p.Colors() {
		t.Errorf("unexpected plan settings: %+v %v %v", p.Budget(), p.SourceMaps(), p.Colors())
	}
}

func TestAssembleEmptyRulesAndPlugins(t *testing.T) {
	cfg := &config.Build{
		Entries: config.NewEntries(config.Entry{Name: "main", Source: "./index.js"}),
		Output:  config.Output{Path: "dist", Filename: "[name].js"},
	}

	p, err := builder.New().WithBaseDir(t.TempDir()).Assemble(t.Context(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Rules().Len() != 0 || p.Plugins().Len() != 0 {
		t.Fatal("expected empty rules and plugins")
	}
	if p.Budget().MaxAssetBytes != config.DefaultBudgetBytes {
		t.Fatalf("expected default budget, got %+v", p.Budget())
	}
	if p.SourceMaps() != config.SourceMapNone {
		t.Fatalf("expected no source maps, got %v", p.SourceMaps())
	}
}

func TestAssembleAggregatesProblems(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"src/app.js": ""})

	cfg := &config.Build{
		Entries: config.NewEntries(
			config.Entry{Name: "app", Source: "./src/app.js"},
			config.Entry{Name: "app", Source: "./src/missing.js"},
		),
		Output: config.Output{Path: "dist", Filename: "bundle.js"},
		Rules: config.Rules{
			{Test: "/([a-z/", Loader: "babel-loader"},
			{Test: "*.ts", Loader: "coffee-loader"},
		},
		Plugins: config.Plugins{
			{Kind: config.PluginKindIgnoreModule, Resource: "[unclosed"},
		},
		Performance: config.Performance{MaxEntrypointSize: -1},
	}

	p, err := builder.New().
		WithBaseDir(dir).
		WithSourceCheck(true).
		WithActions([]string{"babel-loader", "ts-loader"}).
		Assemble(t.Context(), cfg)
	if p != nil {
		t.Fatal("expected no plan")
	}
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected aggregate error, got %v", err)
	}

	type problem struct {
		Kind    config.ErrorKind
		Subject string
	}
	var act []problem
	for _, e := range config.Problems(err) {
		var ce *config.Error
		if !errors.As(e, &ce) {
			t.Fatalf("unexpected problem type %T: %v", e, e)
		}
		act = append(act, problem{ce.Kind, ce.Subject})
	}

	exp := []problem{
		{config.DuplicateEntryName, "app"},
		{config.InvalidTemplate, "bundle.js"},
		{config.Invalid, "rules[0]"},
		{config.Invalid, "rules[1]"},
		{config.Invalid, "plugins[0]"},
		{config.Invalid, "max_entrypoint_size"},
		{config.SourceUnreachable, "app"},
	}
	if diff := cmp.Diff(exp, act); diff != "" {
		t.Errorf("problems (-want, +got):\n%s", diff)
	}

	for _, target := range []error{config.ErrDuplicateEntryName, config.ErrInvalidTemplate, config.ErrSourceUnreachable} {
		if !errors.Is(err, target) {
			t.Errorf("expected errors.Is(err, %v)", target)
		}
	}
}

func TestAssembleSourceCheckDeadline(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"src/app.js": ""})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	cfg := &config.Build{
		Entries: config.NewEntries(config.Entry{Name: "app", Source: "./src/app.js"}),
		Output:  config.Output{Path: "dist", Filename: "[name].js"},
	}

	_, err := builder.New().WithBaseDir(dir).WithSourceCheck(true).Assemble(ctx, cfg)
	if !errors.Is(err, config.ErrSourceUnreachable) {
		t.Fatalf("expected source unreachable, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cause to be kept, got %v", err)
	}
}

func TestAssembleOutputUnwritable(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"public": "not a directory"})

	cfg := &config.Build{
		Entries: config.NewEntries(config.Entry{Name: "app", Source: "./src/app.js"}),
		Output:  config.Output{Path: "public/dist", Filename: "[name].js"},
	}

	_, err := builder.New().WithBaseDir(dir).Assemble(t.Context(), cfg)
	if !errors.Is(err, config.ErrOutputUnwritable) {
		t.Fatalf("expected output unwritable, got %v", err)
	}
}

func TestResolveModule(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/app.ts":                    "",
		"src/lib/index.js":              "",
		"node_modules/moment/moment.js": "",
	})

	for _, tc := range []struct {
		note   string
		source string
		exp    string
		expErr bool
	}{
		{note: "extension added", source: "./src/app", exp: "src/app.ts"},
		{note: "exact file", source: "./src/app.ts", exp: "src/app.ts"},
		{note: "directory index", source: "./src/lib", exp: "src/lib/index.js"},
		{note: "package", source: "moment", exp: "node_modules/moment"},
		{note: "missing file", source: "./src/missing.js", expErr: true},
		{note: "missing package", source: "lodash", expErr: true},
	} {
		t.Run(tc.note, func(t *testing.T) {
			act, err := builder.ResolveModule(dir, tc.source)
			if tc.expErr {
				if err == nil {
					t.Fatalf("expected error, got %q", act)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if exp := filepath.Join(dir, filepath.FromSlash(tc.exp)); act != exp {
				t.Fatalf("expected %q, got %q", exp, act)
			}
		})
	}
}
