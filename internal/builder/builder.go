package builder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/logging"
	"github.com/am-lens/bundlectl/internal/metrics"
	"github.com/am-lens/bundlectl/internal/plan"
	"github.com/am-lens/bundlectl/internal/progress"
)

const (
	DefaultTimeout     = 2 * time.Second
	DefaultConcurrency = 8
)

// Extensions tried, in order, for a module path written without one.
var moduleExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}

// Builder assembles build plans. It holds no state between assemblies.
type Builder struct {
	baseDir      string
	checkSources bool
	timeout      time.Duration
	concurrency  int
	actions      []string
	log          *logging.Logger
	bar          *progress.Bar
}

func New() *Builder {
	return &Builder{
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
	}
}

// WithBaseDir sets the directory relative paths of the configuration are
// resolved against, usually the directory of the configuration file.
func (b *Builder) WithBaseDir(dir string) *Builder {
	b.baseDir = dir
	return b
}

// WithSourceCheck enables checking that every entry module exists.
func (b *Builder) WithSourceCheck(enabled bool) *Builder {
	b.checkSources = enabled
	return b
}

func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

func (b *Builder) WithConcurrency(n int) *Builder {
	b.concurrency = n
	return b
}

// WithActions restricts rule loaders to the given identifiers. Without it,
// any loader name is accepted.
func (b *Builder) WithActions(ids []string) *Builder {
	b.actions = slices.Clone(ids)
	if b.actions == nil {
		b.actions = []string{}
	}
	return b
}

func (b *Builder) WithLogger(l *logging.Logger) *Builder {
	b.log = l
	return b
}

func (b *Builder) WithProgress(bar *progress.Bar) *Builder {
	b.bar = bar
	return b
}

// Assemble validates cfg and returns the build plan. Every problem found is
// reported in one *config.Error of kind Invalid; no plan is returned then.
func (b *Builder) Assemble(ctx context.Context, cfg *config.Build) (*plan.Plan, error) {
	metrics.PlanAssemblyCount.Inc()

	p, err := b.assemble(ctx, cfg)
	if err != nil {
		for _, problem := range config.Problems(err) {
			kind := config.Invalid
			var ce *config.Error
			if errors.As(problem, &ce) {
				kind = ce.Kind
			}
			metrics.PlanAssemblyFailed.WithLabelValues(kind.String()).Inc()
		}
		return nil, err
	}

	b.log.Debugf("assembled plan %s: %d entries, %d rules, %d plugins", p.Digest()[:12], len(p.Entries()), p.Rules().Len(), p.Plugins().Len())
	return p, nil
}

func (b *Builder) assemble(ctx context.Context, cfg *config.Build) (*plan.Plan, error) {
	if cfg == nil {
		return nil, config.Aggregate([]error{config.NewError(config.Invalid, "build", errors.New("missing build configuration"))})
	}

	baseDir, err := filepath.Abs(cmp.Or(b.baseDir, "."))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	var problems []error

	declared := plan.EntriesFromConfig(cfg.Entries)
	entries, err := plan.ResolveEntries(declared)
	problems = append(problems, config.Problems(err)...)

	output, err := b.output(baseDir, cfg.Output)
	problems = append(problems, config.Problems(err)...)

	rules, errs := b.rules(cfg.Rules)
	problems = append(problems, errs...)

	plugins, errs := plugins(cfg.Plugins)
	problems = append(problems, errs...)

	budget, err := plan.NewBudget(cfg.Performance.MaxEntrypointSize, cfg.Performance.MaxAssetSize)
	problems = append(problems, config.Problems(err)...)

	if b.checkSources {
		problems = append(problems, b.sources(ctx, baseDir, declared)...)
	}

	if err := config.Aggregate(problems); err != nil {
		return nil, err
	}

	return plan.New(plan.Parts{
		Entries:    entries,
		Output:     output,
		Rules:      plan.NewRuleSet(rules...),
		Plugins:    plan.NewChain(plugins...),
		Budget:     budget,
		SourceMaps: cfg.Devtool,
		Colors:     cfg.Stats.Colors,
	}), nil
}

func (b *Builder) output(baseDir string, cfg config.Output) (plan.Output, error) {
	root := cfg.Path
	if !filepath.IsAbs(root) {
		root = filepath.Join(baseDir, root)
	}

	out, err := plan.NewOutput(root, cfg.Filename)
	if err != nil {
		return plan.Output{}, err
	}

	if err := checkWritable(root); err != nil {
		return plan.Output{}, config.NewError(config.OutputUnwritable, root, err)
	}
	return out, nil
}

func (b *Builder) rules(cfg config.Rules) ([]plan.Rule, []error) {
	var (
		rules    []plan.Rule
		problems []error
	)
	for i, r := range cfg {
		subject := fmt.Sprintf("rules[%d]", i)
		rule, err := plan.NewRule(r.Test, r.Exclude, r.Loader)
		if err != nil {
			problems = append(problems, config.NewError(config.Invalid, subject, err))
			continue
		}
		if b.actions != nil && !slices.Contains(b.actions, r.Loader) {
			problems = append(problems, config.NewError(config.Invalid, subject,
				fmt.Errorf("unknown loader %q, must be one of %s", r.Loader, strings.Join(b.actions, ", "))))
			continue
		}
		rules = append(rules, rule)
	}
	return rules, problems
}

func plugins(cfg config.Plugins) ([]plan.Plugin, []error) {
	var (
		plugins  []plan.Plugin
		problems []error
	)
	for i, p := range cfg {
		subject := fmt.Sprintf("plugins[%d]", i)
		if p.Kind != "" && p.Kind != config.PluginKindIgnoreModule {
			problems = append(problems, config.NewError(config.Invalid, subject, fmt.Errorf("unknown plugin kind %q", p.Kind)))
			continue
		}
		plugin, err := plan.NewIgnoreModule(p.Resource, p.Context)
		if err != nil {
			problems = append(problems, config.NewError(config.Invalid, subject, err))
			continue
		}
		plugins = append(plugins, plugin)
	}
	return plugins, problems
}

// sources checks, in parallel, that every entry module can be found. The
// problems are returned in entry order.
func (b *Builder) sources(ctx context.Context, baseDir string, entries []plan.Entry) []error {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(b.timeout, DefaultTimeout))
	defer cancel()

	results := make([]error, len(entries))

	var g errgroup.Group
	g.SetLimit(max(b.concurrency, 1))
	b.bar.AddMax(len(entries))

	for i, e := range entries {
		if e.Source == "" {
			b.bar.Add(1)
			continue
		}
		g.Go(func() error {
			defer b.bar.Add(1)
			results[i] = checkSource(ctx, baseDir, e)
			return nil
		})
	}
	_ = g.Wait()

	var problems []error
	for _, err := range results {
		if err != nil {
			problems = append(problems, err)
		}
	}
	return problems
}

func checkSource(ctx context.Context, baseDir string, e plan.Entry) error {
	if err := ctx.Err(); err != nil {
		return config.NewError(config.SourceUnreachable, e.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := ResolveModule(baseDir, e.Source)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return config.NewError(config.SourceUnreachable, e.Name, err)
		}
		return nil
	case <-ctx.Done():
		return config.NewError(config.SourceUnreachable, e.Name, fmt.Errorf("%s: %w", e.Source, ctx.Err()))
	}
}

// ResolveModule finds the file a module path refers to. Relative and
// absolute paths are files (the extension may be left out, a directory
// stands for its index module). Other paths name a package under
// node_modules of baseDir.
func ResolveModule(baseDir, source string) (string, error) {
	if !isPathSpecifier(source) {
		pkg := filepath.Join(baseDir, "node_modules", filepath.FromSlash(source))
		if _, err := os.Stat(pkg); err != nil {
			return "", fmt.Errorf("package %s not found in %s", source, filepath.Join(baseDir, "node_modules"))
		}
		return pkg, nil
	}

	path := filepath.FromSlash(source)
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	candidates := []string{path}
	for _, ext := range moduleExtensions {
		candidates = append(candidates, path+ext)
	}
	for _, ext := range moduleExtensions {
		candidates = append(candidates, filepath.Join(path, "index"+ext))
	}

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("module %s not found", source)
}

func isPathSpecifier(source string) bool {
	return source == "." || source == ".." ||
		strings.HasPrefix(source, "./") || strings.HasPrefix(source, "../") ||
		strings.HasPrefix(source, "/") || filepath.IsAbs(source)
}

// checkWritable reports whether files can be created at path: the nearest
// existing ancestor must be a writable directory.
func checkWritable(path string) error {
	for dir := path; ; dir = filepath.Dir(dir) {
		fi, err := os.Stat(dir)
		switch {
		case err == nil && !fi.IsDir():
			return fmt.Errorf("%s is not a directory", dir)
		case err == nil:
			return writable(dir)
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
		if parent := filepath.Dir(dir); parent == dir {
			return fmt.Errorf("no existing ancestor of %s", path)
		}
	}
}
