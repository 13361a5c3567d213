// Package bundler runs esbuild for a build plan.
package bundler

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/logging"
	"github.com/am-lens/bundlectl/internal/metrics"
	"github.com/am-lens/bundlectl/internal/plan"
)

// Imports dropped by the plan's plugins resolve into this namespace and load
// as empty modules.
const ignoredNamespace = "ignored"

type Bundler struct {
	registry *Registry
	log      *logging.Logger
	baseDir  string
	minify   bool
}

func New(registry *Registry) *Bundler {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Bundler{registry: registry}
}

func (b *Bundler) WithLogger(l *logging.Logger) *Bundler {
	b.log = l
	return b
}

// WithBaseDir sets the working directory entry module paths are relative to.
func (b *Bundler) WithBaseDir(dir string) *Bundler {
	b.baseDir = dir
	return b
}

func (b *Bundler) WithMinify(minify bool) *Bundler {
	b.minify = minify
	return b
}

// Artifact is a file written by the bundler.
type Artifact struct {
	Path  string // absolute
	Entry string // name of the entry the artifact is the bundle of, if any
	Bytes int64
}

type Result struct {
	Artifacts []Artifact
	Warnings  []*plan.Warning
}

// Run bundles every entry of p and checks the sizes of the emitted
// scripts and stylesheets against the plan's budget.
func (b *Bundler) Run(ctx context.Context, p *plan.Plan) (*Result, error) {
	start := time.Now()
	metrics.BundleBuildCount.Inc()
	defer func() {
		metrics.BundleBuildDuration.Observe(time.Since(start).Seconds())
	}()

	result, err := b.run(ctx, p)
	if err != nil {
		metrics.BundleBuildFailed.Inc()
		return nil, err
	}
	return result, nil
}

func (b *Bundler) run(ctx context.Context, p *plan.Plan) (*Result, error) {
	baseDir, err := filepath.Abs(cmp.Or(b.baseDir, "."))
	if err != nil {
		return nil, err
	}

	opts, artifacts, err := b.options(baseDir, p)
	if err != nil {
		return nil, err
	}

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return nil, fmt.Errorf("esbuild: %w", messages(cerr.Errors))
	}
	defer bctx.Dispose()

	stop := context.AfterFunc(ctx, bctx.Cancel)
	defer stop()

	b.log.Infof("bundling %d entries into %s", len(artifacts), p.Output().Root())
	res := bctx.Rebuild()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, w := range api.FormatMessages(res.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage, Color: p.Colors()}) {
		b.log.Warnf("%s", strings.TrimSpace(w))
	}
	if len(res.Errors) > 0 {
		for _, msg := range api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage, Color: p.Colors()}) {
			b.log.Errorf("%s", strings.TrimSpace(msg))
		}
		return nil, fmt.Errorf("esbuild failed with %d error(s): %w", len(res.Errors), messages(res.Errors))
	}

	var meta Metafile
	if err := json.Unmarshal([]byte(res.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	return b.check(baseDir, p, artifacts, meta), nil
}

// options translates the plan. The returned map has the planned artifact
// path of each entry.
func (b *Bundler) options(baseDir string, p *plan.Plan) (api.BuildOptions, map[string]string, error) {
	root := p.Output().Root()

	var (
		entryPoints []api.EntryPoint
		ext         string
	)
	artifacts := map[string]string{}
	for _, e := range p.Entries() {
		path, err := p.Output().Plan(e)
		if err != nil {
			return api.BuildOptions{}, nil, err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return api.BuildOptions{}, nil, err
		}
		ext = filepath.Ext(rel)
		if ext == "" {
			return api.BuildOptions{}, nil, config.NewError(config.InvalidTemplate, p.Output().Template(), errors.New("needs a file extension"))
		}
		entryPoints = append(entryPoints, api.EntryPoint{
			InputPath:  e.Source,
			OutputPath: filepath.ToSlash(strings.TrimSuffix(rel, ext)),
		})
		artifacts[path] = e.Name
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: entryPoints,
		AbsWorkingDir:       baseDir,
		Outdir:              root,
		Bundle:              true,
		Write:               true,
		Metafile:            true,
		LogLevel:            api.LogLevelSilent,
		Platform:            api.PlatformBrowser,
		Format:              api.FormatIIFE,
		Target:              api.ES2015,
		MinifyWhitespace:    b.minify,
		MinifyIdentifiers:   b.minify,
		MinifySyntax:        b.minify,
		Sourcemap:           sourceMap(p.SourceMaps()),
		Color:               cond(p.Colors(), api.ColorAlways, api.ColorNever),
		Plugins:             []api.Plugin{b.plugin(baseDir, p)},
	}
	if ext != ".js" {
		opts.OutExtension = map[string]string{".js": ext}
	}

	return opts, artifacts, nil
}

func sourceMap(policy config.SourceMapPolicy) api.SourceMap {
	switch policy {
	case config.SourceMapInline:
		return api.SourceMapInline
	case config.SourceMapExternal:
		return api.SourceMapLinked
	default:
		return api.SourceMapNone
	}
}

func (b *Bundler) plugin(baseDir string, p *plan.Plan) api.Plugin {
	chain := p.Plugins()
	rules := p.Rules()

	return api.Plugin{
		Name: "bundlectl",
		Setup: func(build api.PluginBuild) {
			if chain.Len() > 0 {
				build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					edge := plan.Edge{Target: args.Path, Context: filepath.ToSlash(args.ResolveDir)}
					if chain.Apply(edge) == plan.Keep {
						return api.OnResolveResult{}, nil
					}
					b.log.Debugf("ignoring import %q from %s", args.Path, args.Importer)
					return api.OnResolveResult{Path: args.Path, Namespace: ignoredNamespace}, nil
				})

				build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: ignoredNamespace}, func(api.OnLoadArgs) (api.OnLoadResult, error) {
					empty := ""
					return api.OnLoadResult{Contents: &empty, Loader: api.LoaderJS}, nil
				})
			}

			if rules.Len() > 0 {
				build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					return b.load(baseDir, rules, args.Path)
				})
			}
		},
	}
}

// load runs the transformer selected by the rules for path. Files no rule
// applies to are left to esbuild.
func (b *Bundler) load(baseDir string, rules plan.RuleSet, path string) (api.OnLoadResult, error) {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		rel = path
	}

	action, ok := rules.Classify(filepath.ToSlash(rel))
	if !ok {
		return api.OnLoadResult{}, nil
	}

	t, ok := b.registry.Lookup(action)
	if !ok {
		return api.OnLoadResult{}, fmt.Errorf("no transformer for loader %q", action)
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	out, err := t.Transform(path, string(bs))
	if err != nil {
		return api.OnLoadResult{}, err
	}

	b.log.Debugf("%s: %s", action, rel)
	return api.OnLoadResult{
		Contents:   &out.Contents,
		Loader:     out.Loader,
		ResolveDir: filepath.Dir(path),
	}, nil
}

func (b *Bundler) check(baseDir string, p *plan.Plan, entries map[string]string, meta Metafile) *Result {
	var result Result
	budget := p.Budget()
	root := p.Output().Root()

	for _, out := range sortedKeys(meta.Outputs) {
		path := filepath.Join(baseDir, filepath.FromSlash(out))
		a := Artifact{Path: path, Entry: entries[path], Bytes: meta.Outputs[out].Bytes}
		result.Artifacts = append(result.Artifacts, a)

		if ext := filepath.Ext(path); ext != ".js" && ext != ".css" && a.Entry == "" {
			continue
		}

		w := budget.Check(a.Bytes, a.Entry != "")
		if w == nil {
			continue
		}
		if rel, err := filepath.Rel(root, path); err == nil {
			w.Asset = filepath.ToSlash(rel)
		} else {
			w.Asset = path
		}
		kind := "asset"
		if w.Entrypoint {
			kind = "entrypoint"
		}
		metrics.BudgetWarnings.WithLabelValues(w.Asset, kind).Inc()
		b.log.Warnf("%s", w)
		result.Warnings = append(result.Warnings, w)
	}

	return &result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
