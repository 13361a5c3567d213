package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/akedrou/textdiff"
	"github.com/goccy/go-yaml"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/am-lens/bundlectl/internal/plan"
)

type outputFormat int

const (
	formatJSON outputFormat = iota
	formatYAML
	formatTable
)

var outputFormatIdentifiers = map[outputFormat][]string{
	formatJSON:  {"json"},
	formatYAML:  {"yaml", "yml"},
	formatTable: {"table"},
}

type planParams struct {
	format       outputFormat
	checkSources bool
	diffEnv      string
}

func newPlanCommand(root *rootParams) *cobra.Command {
	var params planParams

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the build plan of an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := root.logger(cmd)
			cfg, baseDir, err := root.load()
			if err != nil {
				return err
			}

			opts := assembleOptions{checkSources: params.checkSources}
			p, err := root.assemble(cmd, log, cfg, baseDir, root.env, opts)
			if err != nil {
				return err
			}

			if params.diffEnv == "" {
				return writePlan(cmd.OutOrStdout(), p, params.format)
			}

			other, err := root.assemble(cmd, log.With("env", params.diffEnv), cfg, baseDir, params.diffEnv, opts)
			if err != nil {
				return fmt.Errorf("environment %q: %w", params.diffEnv, err)
			}
			return diffPlans(cmd.OutOrStdout(), root.env, p, params.diffEnv, other, params.format)
		},
	}

	cmd.Flags().VarP(enumflag.New(&params.format, "format", outputFormatIdentifiers, enumflag.EnumCaseInsensitive), "format", "f", "output format (json, yaml, table)")
	cmd.Flags().BoolVar(&params.checkSources, "check-sources", false, "check that every entry module exists")
	cmd.Flags().StringVar(&params.diffEnv, "diff-env", "", "print the differences to the plan of another environment")

	return cmd
}

func writePlan(w io.Writer, p *plan.Plan, format outputFormat) error {
	switch format {
	case formatTable:
		return planTable(w, p)
	default:
		bs, err := encodePlan(p, format)
		if err != nil {
			return err
		}
		_, err = w.Write(bs)
		return err
	}
}

func encodePlan(p *plan.Plan, format outputFormat) ([]byte, error) {
	if format == formatYAML {
		return yaml.Marshal(p)
	}

	bs, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(bs, '\n'), nil
}

func diffPlans(w io.Writer, env string, p *plan.Plan, otherEnv string, other *plan.Plan, format outputFormat) error {
	if format == formatTable {
		format = formatYAML
	}

	a, err := encodePlan(p, format)
	if err != nil {
		return err
	}
	b, err := encodePlan(other, format)
	if err != nil {
		return err
	}

	diff := textdiff.Unified(env, otherEnv, string(a), string(b))
	if diff == "" {
		_, err = fmt.Fprintf(w, "plans of %s and %s are identical\n", env, otherEnv)
		return err
	}
	_, err = io.WriteString(w, diff)
	return err
}

func planTable(w io.Writer, p *plan.Plan) error {
	artifacts, err := p.Artifacts()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Name", "Value")

	rows := [][]string{}
	for _, e := range p.Entries() {
		rows = append(rows, []string{"entry", e.Name, e.Source})
	}
	for _, e := range p.Entries() {
		rows = append(rows, []string{"artifact", e.Name, artifacts[e.Name]})
	}
	for i, r := range p.Rules().Rules() {
		value := r.Test.String()
		if !r.Exclude.IsZero() {
			value += " (exclude " + r.Exclude.String() + ")"
		}
		rows = append(rows, []string{"rule", strconv.Itoa(i) + ":" + r.Action, value})
	}
	for _, pl := range p.Plugins().Plugins() {
		value := pl.Target.String()
		if !pl.Context.IsZero() {
			value += " (context " + pl.Context.String() + ")"
		}
		rows = append(rows, []string{"plugin", pl.Kind, value})
	}
	rows = append(rows,
		[]string{"budget", "max_entrypoint_bytes", strconv.FormatInt(p.Budget().MaxEntrypointBytes, 10)},
		[]string{"budget", "max_asset_bytes", strconv.FormatInt(p.Budget().MaxAssetBytes, 10)},
		[]string{"option", "source_map_policy", string(p.SourceMaps())},
		[]string{"option", "colorized_output", strconv.FormatBool(p.Colors())},
	)

	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
