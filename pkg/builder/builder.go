package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	ibuilder "github.com/am-lens/bundlectl/internal/builder"
	"github.com/am-lens/bundlectl/internal/bundler"
	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/logging"
	"github.com/am-lens/bundlectl/internal/plan"
)

type (
	Builder = ibuilder.Builder
	Plan    = plan.Plan
	Error   = config.Error
	Result  = bundler.Result
	Warning = plan.Warning
)

// Error kinds.
const (
	Invalid            = config.Invalid
	DuplicateEntryName = config.DuplicateEntryName
	InvalidTemplate    = config.InvalidTemplate
	UnknownEnvironment = config.UnknownEnvironment
	SourceUnreachable  = config.SourceUnreachable
	OutputUnwritable   = config.OutputUnwritable
)

// Config is the build configuration of one environment.
type Config struct {
	Environment string
	Build       *config.Build
	BaseDir     string          // directory relative paths are resolved against
	Logger      *logging.Logger // nil discards log output
}

// New returns a Builder restricted to the loaders of the default registry.
func New() *Builder {
	return ibuilder.New().WithActions(bundler.DefaultRegistry().IDs())
}

// Load merges the configuration files (directories are walked) and returns
// the build configuration of env.
func Load(files []string, env string) (*Config, error) {
	bs, err := config.Merge(files, false)
	if err != nil {
		return nil, err
	}

	root, err := config.Parse(bs)
	if err != nil {
		return nil, err
	}

	build, err := root.BuildFor(env)
	if err != nil {
		return nil, err
	}

	baseDir := ""
	if len(files) > 0 {
		baseDir = files[0]
		if fi, err := os.Stat(baseDir); err != nil || !fi.IsDir() {
			baseDir = filepath.Dir(baseDir)
		}
	}

	return &Config{Environment: env, Build: build, BaseDir: baseDir}, nil
}

// Assemble resolves the configuration with b. Relative paths are resolved
// against BaseDir.
func (c *Config) Assemble(ctx context.Context, b *Builder) (*Plan, error) {
	p, err := b.WithBaseDir(c.BaseDir).WithLogger(c.logger()).Assemble(ctx, c.Build)
	if err != nil {
		return nil, fmt.Errorf("environment %s: %w", c.Environment, err)
	}
	return p, nil
}

// Bundle runs p with the default transformers.
func (c *Config) Bundle(ctx context.Context, p *Plan) (*Result, error) {
	return bundler.New(bundler.DefaultRegistry()).WithLogger(c.logger()).WithBaseDir(c.BaseDir).Run(ctx, p)
}

func (c *Config) logger() *logging.Logger {
	return c.Logger.With("env", c.Environment)
}

// Problems returns the individual problems reported by Assemble.
func Problems(err error) []error {
	return config.Problems(err)
}
