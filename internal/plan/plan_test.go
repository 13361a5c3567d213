package plan_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/plan"
)

func TestResolveEntries(t *testing.T) {
	for _, tc := range []struct {
		note    string
		entries []plan.Entry
		exp     []plan.Entry
		expErr  error
	}{
		{
			note: "distinct names keep declaration order",
			entries: []plan.Entry{
				{Name: "custom", Source: "./src/custom.js"},
				{Name: "app", Source: "./src/app.js"},
			},
			exp: []plan.Entry{
				{Name: "custom", Source: "./src/custom.js"},
				{Name: "app", Source: "./src/app.js"},
			},
		},
		{
			note: "duplicate name",
			entries: []plan.Entry{
				{Name: "app", Source: "./src/app.js"},
				{Name: "app", Source: "./src/other.js"},
			},
			expErr: config.ErrDuplicateEntryName,
		},
		{
			note:   "no entries",
			expErr: config.ErrInvalid,
		},
		{
			note:    "empty source",
			entries: []plan.Entry{{Name: "app"}},
			expErr:  config.ErrInvalid,
		},
		{
			note:    "name escaping the output root",
			entries: []plan.Entry{{Name: "../../etc/evil", Source: "./src/evil.js"}},
			expErr:  config.ErrInvalid,
		},
		{
			note:    "absolute name",
			entries: []plan.Entry{{Name: "/etc/evil", Source: "./src/evil.js"}},
			expErr:  config.ErrInvalid,
		},
		{
			note:    "nested name stays below the root",
			entries: []plan.Entry{{Name: "admin/app", Source: "./src/admin.js"}},
			exp:     []plan.Entry{{Name: "admin/app", Source: "./src/admin.js"}},
		},
	} {
		t.Run(tc.note, func(t *testing.T) {
			act, err := plan.ResolveEntries(tc.entries)
			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Fatalf("expected %v, got %v", tc.expErr, err)
				}
				if act != nil {
					t.Fatalf("expected no entries on failure, got %v", act)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, act); diff != "" {
				t.Errorf("entries (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestResolveEntriesReportsEveryDuplicate(t *testing.T) {
	_, err := plan.ResolveEntries([]plan.Entry{
		{Name: "a", Source: "./a.js"},
		{Name: "b", Source: "./b.js"},
		{Name: "a", Source: "./a2.js"},
		{Name: "b", Source: "./b2.js"},
		{Name: "a", Source: "./a3.js"},
	})

	var subjects []string
	for _, p := range config.Problems(err) {
		var ce *config.Error
		if errors.As(p, &ce) && ce.Kind == config.DuplicateEntryName {
			subjects = append(subjects, ce.Subject)
		}
	}
	if diff := cmp.Diff([]string{"a", "b"}, subjects); diff != "" {
		t.Errorf("duplicates (-want, +got):\n%s", diff)
	}
}

func TestClassify(t *testing.T) {
	all := mustRule(t, "*.js", "", "all")
	vendor := mustRule(t, "vendor/*.js", "", "vendor")
	babel := mustRule(t, `/\.js$/`, "/(node_modules)/", "babel-loader")

	for _, tc := range []struct {
		note      string
		rules     []plan.Rule
		path      string
		expAction string
		expOK     bool
	}{
		{note: "general rule first wins", rules: []plan.Rule{all, vendor}, path: "vendor/x.js", expAction: "all", expOK: true},
		{note: "specific rule first wins", rules: []plan.Rule{vendor, all}, path: "vendor/x.js", expAction: "vendor", expOK: true},
		{note: "specific rule does not apply", rules: []plan.Rule{vendor, all}, path: "src/x.js", expAction: "all", expOK: true},
		{note: "no rules", path: "src/x.js"},
		{note: "no match passes through", rules: []plan.Rule{babel}, path: "styles/site.css"},
		{note: "excluded", rules: []plan.Rule{babel}, path: "node_modules/moment/moment.js"},
		{note: "exclusion skips to next rule", rules: []plan.Rule{babel, all}, path: "node_modules/moment/moment.js", expAction: "all", expOK: true},
		{note: "regexp rule", rules: []plan.Rule{babel}, path: "src/app.js", expAction: "babel-loader", expOK: true},
	} {
		t.Run(tc.note, func(t *testing.T) {
			action, ok := plan.NewRuleSet(tc.rules...).Classify(tc.path)
			if action != tc.expAction || ok != tc.expOK {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tc.expAction, tc.expOK, action, ok)
			}
		})
	}
}

func TestChainApply(t *testing.T) {
	locale := mustIgnore(t, `/^\.\/locale$/`, "/moment$/")
	anyLocale := mustIgnore(t, `/^\.\/locale$/`, "")
	fixtures := mustIgnore(t, "*fixtures*", "")

	momentEdge := plan.Edge{Target: "./locale", Context: "/app/node_modules/moment"}

	for _, tc := range []struct {
		note    string
		plugins []plan.Plugin
		edge    plan.Edge
		exp     plan.Decision
	}{
		{note: "no plugins", edge: momentEdge, exp: plan.Keep},
		{note: "one matching plugin", plugins: []plan.Plugin{locale}, edge: momentEdge, exp: plan.Drop},
		{note: "context does not match", plugins: []plan.Plugin{locale}, edge: plan.Edge{Target: "./locale", Context: "/app/src"}, exp: plan.Keep},
		{note: "empty context matches anywhere", plugins: []plan.Plugin{anyLocale}, edge: plan.Edge{Target: "./locale", Context: "/app/src"}, exp: plan.Drop},
		{note: "target does not match", plugins: []plan.Plugin{locale}, edge: plan.Edge{Target: "./locale/de", Context: "/app/node_modules/moment"}, exp: plan.Keep},
		{note: "two plugins, second matches", plugins: []plan.Plugin{fixtures, locale}, edge: momentEdge, exp: plan.Drop},
		{note: "two plugins, both match", plugins: []plan.Plugin{locale, anyLocale}, edge: momentEdge, exp: plan.Drop},
		{note: "two plugins, none match", plugins: []plan.Plugin{locale, fixtures}, edge: plan.Edge{Target: "./util", Context: "/app/src"}, exp: plan.Keep},
	} {
		t.Run(tc.note, func(t *testing.T) {
			if act := plan.NewChain(tc.plugins...).Apply(tc.edge); act != tc.exp {
				t.Fatalf("expected %v, got %v", tc.exp, act)
			}
		})
	}
}

func TestOutputPlan(t *testing.T) {
	o, err := plan.NewOutput("/dist", "[name].bundle.js")
	if err != nil {
		t.Fatal(err)
	}
	path, err := o.Plan(plan.Entry{Name: "app", Source: "./src/app.js"})
	if err != nil {
		t.Fatal(err)
	}
	if path != "/dist/app.bundle.js" {
		t.Fatalf("unexpected path %q", path)
	}

	o, err = plan.NewOutput("/dist", "js/{name}.js")
	if err != nil {
		t.Fatal(err)
	}
	if path, _ := o.Plan(plan.Entry{Name: "custom"}); path != "/dist/js/custom.js" {
		t.Fatalf("unexpected path %q", path)
	}

	if _, err := o.Plan(plan.Entry{Name: "../../etc/evil"}); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected invalid for name leaving the root, got %v", err)
	}

	if _, err := (plan.Output{}).Plan(plan.Entry{Name: "app"}); !errors.Is(err, config.ErrInvalidTemplate) {
		t.Fatalf("expected invalid template for zero output, got %v", err)
	}
}

func TestNewOutputErrors(t *testing.T) {
	for _, tc := range []struct {
		note     string
		root     string
		template string
		expErr   error
	}{
		{note: "missing placeholder", root: "/dist", template: "bundle.js", expErr: config.ErrInvalidTemplate},
		{note: "two placeholders", root: "/dist", template: "[name]/{name}.js", expErr: config.ErrInvalidTemplate},
		{note: "escapes root", root: "/dist", template: "../[name].js", expErr: config.ErrInvalidTemplate},
		{note: "absolute template", root: "/dist", template: "/tmp/[name].js", expErr: config.ErrInvalidTemplate},
		{note: "relative root", root: "dist", template: "[name].js", expErr: config.ErrInvalid},
	} {
		t.Run(tc.note, func(t *testing.T) {
			if _, err := plan.NewOutput(tc.root, tc.template); !errors.Is(err, tc.expErr) {
				t.Fatalf("expected %v, got %v", tc.expErr, err)
			}
		})
	}
}

func TestBudgetCheck(t *testing.T) {
	b, err := plan.NewBudget(1024000, 1024000)
	if err != nil {
		t.Fatal(err)
	}

	if w := b.Check(500000, true); w != nil {
		t.Fatalf("expected no warning, got %v", w)
	}
	exp := &plan.Warning{Size: 2000000, Limit: 1024000, Entrypoint: true}
	if diff := cmp.Diff(exp, b.Check(2000000, true)); diff != "" {
		t.Errorf("warning (-want, +got):\n%s", diff)
	}

	b, err = plan.NewBudget(2000000, 100)
	if err != nil {
		t.Fatal(err)
	}
	exp = &plan.Warning{Size: 1000, Limit: 100}
	if diff := cmp.Diff(exp, b.Check(1000, true)); diff != "" {
		t.Errorf("entrypoint within its limit is still an asset (-want, +got):\n%s", diff)
	}

	b, err = plan.NewBudget(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.MaxAssetBytes != config.DefaultBudgetBytes || b.MaxEntrypointBytes != config.DefaultBudgetBytes {
		t.Fatalf("expected default budgets, got %+v", b)
	}

	if _, err := plan.NewBudget(-1, 10); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected invalid budget, got %v", err)
	}
}

func TestPlanSerialization(t *testing.T) {
	p := testPlan(t)

	bs, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}

	var act map[string]any
	if err := json.Unmarshal(bs, &act); err != nil {
		t.Fatal(err)
	}

	exp := map[string]any{
		"entries": []any{
			map[string]any{"name": "app", "source_path": "./src/app.js"},
			map[string]any{"name": "custom", "source_path": "./src/custom.js"},
		},
		"output_root":       "/srv/public/dist",
		"filename_template": "[name].bundle.js",
		"rules": []any{
			map[string]any{"match_pattern": `/\.js$/`, "exclude_pattern": "/(node_modules)/", "action_id": "babel-loader"},
		},
		"plugins": []any{
			map[string]any{"kind": "ignore_module", "target_pattern": `/^\.\/locale$/`, "context_pattern": "/moment$/"},
		},
		"budgets":           map[string]any{"max_entrypoint_bytes": float64(1024000), "max_asset_bytes": float64(1024000)},
		"source_map_policy": "external-file",
		"colorized_output":  true,
	}
	if diff := cmp.Diff(exp, act); diff != "" {
		t.Errorf("plan (-want, +got):\n%s", diff)
	}

	ys, err := yaml.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML map[string]any
	if err := yaml.Unmarshal(ys, &fromYAML); err != nil {
		t.Fatal(err)
	}
	if fromYAML["filename_template"] != "[name].bundle.js" || fromYAML["source_map_policy"] != "external-file" {
		t.Errorf("unexpected YAML plan:\n%s", ys)
	}
}

func TestPlanImmutable(t *testing.T) {
	p := testPlan(t)
	digest := p.Digest()

	es := p.Entries()
	es[0].Name = "changed"
	rules := p.Rules().Rules()
	rules[0].Action = "changed"

	if p.Entries()[0].Name != "app" || p.Rules().Rules()[0].Action != "babel-loader" {
		t.Fatal("plan changed through an accessor")
	}
	if p.Digest() != digest {
		t.Fatal("digest changed")
	}
	if digest != testPlan(t).Digest() {
		t.Fatal("expected equal plans to have equal digests")
	}
}

func testPlan(t *testing.T) *plan.Plan {
	t.Helper()

	out, err := plan.NewOutput("/srv/public/dist", "[name].bundle.js")
	if err != nil {
		t.Fatal(err)
	}
	budget, err := plan.NewBudget(1024000, 1024000)
	if err != nil {
		t.Fatal(err)
	}
	return plan.New(plan.Parts{
		Entries: []plan.Entry{
			{Name: "app", Source: "./src/app.js"},
			{Name: "custom", Source: "./src/custom.js"},
		},
		Output:     out,
		Rules:      plan.NewRuleSet(mustRule(t, `/\.js$/`, "/(node_modules)/", "babel-loader")),
		Plugins:    plan.NewChain(mustIgnore(t, `/^\.\/locale$/`, "/moment$/")),
		Budget:     budget,
		SourceMaps: config.SourceMapExternal,
		Colors:     true,
	})
}

func mustRule(t *testing.T, test, exclude, action string) plan.Rule {
	t.Helper()
	r, err := plan.NewRule(test, exclude, action)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func mustIgnore(t *testing.T, target, context string) plan.Plugin {
	t.Helper()
	p, err := plan.NewIgnoreModule(target, context)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
