package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/am-lens/bundlectl/internal/bundler"
	"github.com/am-lens/bundlectl/internal/database"
	"github.com/am-lens/bundlectl/internal/metrics"
)

type buildParams struct {
	minify      bool
	record      bool
	metricsFile string
	progress    bool
}

func newBuildCommand(root *rootParams) *cobra.Command {
	var params buildParams

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble the build plan and bundle every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := root.logger(cmd)

			if params.metricsFile != "" {
				defer func() {
					if err := metrics.WriteToTextfile(params.metricsFile); err != nil {
						log.Errorf("failed to write metrics: %v", err)
					}
				}()
			}

			cfg, baseDir, err := root.load()
			if err != nil {
				return err
			}

			p, err := root.assemble(cmd, log, cfg, baseDir, root.env, assembleOptions{checkSources: true, progress: params.progress})
			if err != nil {
				return err
			}

			result, err := bundler.New(bundler.DefaultRegistry()).
				WithLogger(log).
				WithBaseDir(baseDir).
				WithMinify(params.minify).
				Run(ctx, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, a := range result.Artifacts {
				name, err := filepath.Rel(p.Output().Root(), a.Path)
				if err != nil {
					name = a.Path
				}
				fmt.Fprintf(out, "%s\t%d bytes\n", name, a.Bytes)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "WARNING: %s\n", w)
			}

			if !params.record {
				return nil
			}

			db, err := root.openDatabase(ctx, log, cfg, baseDir)
			if err != nil {
				return fmt.Errorf("failed to record build: %w", err)
			}
			defer db.CloseDB()

			digest := p.Digest()
			if last, err := db.LatestBuild(ctx, root.env); err == nil && last.PlanDigest == digest {
				log.Infof("plan unchanged since build %d", last.ID)
			} else if err != nil && !database.IsNotFound(err) {
				return err
			}

			id, err := db.RecordBuild(ctx, database.Record{
				Environment: root.env,
				PlanDigest:  digest,
				Entries:     len(p.Entries()),
				Warnings:    len(result.Warnings),
				OutputRoot:  p.Output().Root(),
			})
			if err != nil {
				return err
			}
			log.Infof("recorded build %d", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&params.minify, "minify", false, "minify the bundles")
	cmd.Flags().BoolVar(&params.record, "record", false, "record the build in the environment's database")
	cmd.Flags().StringVar(&params.metricsFile, "metrics-file", "", "write metrics in the Prometheus text format to this file")
	cmd.Flags().BoolVar(&params.progress, "progress", false, "show progress while checking sources")

	return cmd
}
