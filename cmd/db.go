package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/am-lens/bundlectl/internal/database"
)

func newDatabaseCommand(root *rootParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the database of an environment",
	}

	cmd.AddCommand(
		newDatabaseShowCommand(root),
		newDatabaseMigrateCommand(root),
		newDatabaseHistoryCommand(root),
	)

	return cmd
}

func newDatabaseShowCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, baseDir, err := root.load()
			if err != nil {
				return err
			}

			conn, err := database.NewResolver(cfg.Databases).WithBaseDir(baseDir).Resolve(root.env)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Environment", "Client", "Target", "Null defaults")
			if err := table.Append([]string{root.env, conn.Client, conn.Redacted(), strconv.FormatBool(conn.NullDefaults)}); err != nil {
				return err
			}
			return table.Render()
		},
	}
}

func newDatabaseMigrateCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the build history schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, baseDir, err := root.load()
			if err != nil {
				return err
			}

			db, err := root.openDatabase(cmd.Context(), root.logger(cmd), cfg, baseDir)
			if err != nil {
				return err
			}
			defer db.CloseDB()

			dialect, _ := db.Dialect()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s database of %s is up to date\n", dialect, root.env)
			return err
		},
	}
}

func newDatabaseHistoryCommand(root *rootParams) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded builds, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, baseDir, err := root.load()
			if err != nil {
				return err
			}

			db, err := root.openDatabase(cmd.Context(), root.logger(cmd), cfg, baseDir)
			if err != nil {
				return err
			}
			defer db.CloseDB()

			builds, err := db.ListBuilds(cmd.Context(), limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(builds))
			for _, b := range builds {
				rows = append(rows, []string{
					strconv.FormatInt(b.ID, 10),
					b.Environment,
					shortDigest(b.PlanDigest),
					strconv.Itoa(b.Entries),
					strconv.Itoa(b.Warnings),
					b.BuiltAt.Format(time.RFC3339),
				})
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "Environment", "Plan", "Entries", "Warnings", "Built at")
			if err := table.Bulk(rows); err != nil {
				return err
			}
			return table.Render()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of builds to list (0 for all)")

	return cmd
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
