package cmd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/database"
)

func newValidateCommand(root *rootParams) *cobra.Command {
	var checkSources bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration of every environment",
		Long: `Validate the configuration of every environment.

The build plan of the selected environment and of every environment named by
a database or an overlay is assembled, and every database connection is
resolved. All problems are reported at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := root.logger(cmd)
			cfg, baseDir, err := root.load()
			if err != nil {
				return err
			}

			envs := cfg.Environments()
			if !slices.Contains(envs, root.env) {
				envs = append([]string{root.env}, envs...)
			}

			var problems []error
			for _, env := range envs {
				opts := assembleOptions{checkSources: checkSources}
				if _, err := root.assemble(cmd, log.With("env", env), cfg, baseDir, env, opts); err != nil {
					for _, problem := range config.Problems(err) {
						problems = append(problems, fmt.Errorf("%s: %w", env, problem))
					}
				}
			}

			resolver := database.NewResolver(cfg.Databases).WithBaseDir(baseDir)
			for _, env := range resolver.Environments() {
				if _, err := resolver.Resolve(env); err != nil {
					problems = append(problems, fmt.Errorf("database: %w", err))
				}
			}

			if err := config.Aggregate(problems); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (%d environment(s))\n", len(envs))
			return err
		},
	}

	cmd.Flags().BoolVar(&checkSources, "check-sources", true, "check that every entry module exists")

	return cmd
}

// isConfigError reports whether err is a configuration problem rather than
// a failure to read or run something.
func isConfigError(err error) bool {
	var e *config.Error
	return errors.As(err, &e)
}
