// Package cmd implements the bundlectl command line.
package cmd

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/am-lens/bundlectl/internal/builder"
	"github.com/am-lens/bundlectl/internal/bundler"
	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/database"
	"github.com/am-lens/bundlectl/internal/logging"
	"github.com/am-lens/bundlectl/internal/plan"
	"github.com/am-lens/bundlectl/internal/progress"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "bundlectl.yaml"

type logFormat int

const (
	logFormatText logFormat = iota
	logFormatJSON
)

var logFormatIdentifiers = map[logFormat][]string{
	logFormatText: {string(logging.FormatText)},
	logFormatJSON: {string(logging.FormatJSON)},
}

type rootParams struct {
	configFiles   []string
	env           string
	logLevel      logging.Level
	logFormat     logFormat
	mergeConflict bool
}

// New returns the bundlectl command tree.
func New() *cobra.Command {
	params := rootParams{logLevel: logging.Info}

	root := &cobra.Command{
		Use:           "bundlectl",
		Short:         "Resolve and run front-end bundle build plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSliceVarP(&params.configFiles, "config", "c", nil, "configuration file or directory (repeatable, merged in order; default "+DefaultConfigFile+")")
	root.PersistentFlags().StringVarP(&params.env, "env", "e", cmp.Or(os.Getenv(config.EnvironmentVariable), config.DefaultEnvironment), "environment to resolve (default $"+config.EnvironmentVariable+")")
	root.PersistentFlags().Var(enumflag.New(&params.logLevel, "level", logging.LevelIdentifiers, enumflag.EnumCaseInsensitive), "log-level", "log level (debug, info, warn, error)")
	root.PersistentFlags().Var(enumflag.New(&params.logFormat, "format", logFormatIdentifiers, enumflag.EnumCaseInsensitive), "log-format", "log format (text, json)")
	root.PersistentFlags().BoolVar(&params.mergeConflict, "merge-conflict-fail", false, "fail when configuration files set the same value differently")

	root.AddCommand(
		newPlanCommand(&params),
		newValidateCommand(&params),
		newBuildCommand(&params),
		newDatabaseCommand(&params),
		newSchemaCommand(),
	)

	return root
}

// Exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitInvalidConfig = 2
)

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := New()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if isConfigError(err) {
			return ExitInvalidConfig
		}
		return ExitFailure
	}
	return ExitOK
}

func (p *rootParams) logger(cmd *cobra.Command) *logging.Logger {
	format := logging.FormatText
	if p.logFormat == logFormatJSON {
		format = logging.FormatJSON
	}
	return logging.NewLogger(logging.Config{
		Level:  p.logLevel,
		Format: format,
		Output: cmd.ErrOrStderr(),
	}).With("env", p.env)
}

// load merges and parses the configuration. The returned directory is the
// one relative paths in the configuration are resolved against: the
// directory of the first configuration file.
func (p *rootParams) load() (*config.Root, string, error) {
	files := p.configFiles
	if len(files) == 0 {
		files = []string{DefaultConfigFile}
	}

	bs, err := config.Merge(files, p.mergeConflict)
	if err != nil {
		return nil, "", err
	}

	root, err := config.Parse(bs)
	if err != nil {
		return nil, "", err
	}

	baseDir := files[0]
	if fi, err := os.Stat(baseDir); err != nil || !fi.IsDir() {
		baseDir = filepath.Dir(baseDir)
	}

	return root, baseDir, nil
}

type assembleOptions struct {
	checkSources bool
	progress     bool
}

// assemble resolves the build plan of env.
func (p *rootParams) assemble(cmd *cobra.Command, log *logging.Logger, root *config.Root, baseDir, env string, opts assembleOptions) (*plan.Plan, error) {
	build, err := root.BuildFor(env)
	if err != nil {
		return nil, err
	}

	b := builder.New().
		WithBaseDir(baseDir).
		WithSourceCheck(opts.checkSources).
		WithActions(bundler.DefaultRegistry().IDs()).
		WithLogger(log)

	if opts.progress && opts.checkSources {
		bar := progress.NewWithWriter(cmd.ErrOrStderr(), "checking sources")
		defer bar.Finish()
		b = b.WithProgress(bar)
	}

	return b.Assemble(cmd.Context(), build)
}

// openDatabase connects to the database of env and brings its schema up to
// date. Callers close it with CloseDB.
func (p *rootParams) openDatabase(ctx context.Context, log *logging.Logger, root *config.Root, baseDir string) (*database.Database, error) {
	conn, err := database.NewResolver(root.Databases).WithBaseDir(baseDir).Resolve(p.env)
	if err != nil {
		return nil, err
	}

	db := (&database.Database{}).WithConfig(conn).WithLogger(log)
	if err := db.InitDB(ctx); err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.CloseDB()
		return nil, err
	}

	return db, nil
}
