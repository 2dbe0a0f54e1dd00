package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/odatamongo/internal/query"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the store operations a query would run",
		Long: `Normalize and compile a query descriptor without connecting to the store.

The descriptor is MongoDB Extended JSON with the keys filter, select, sort,
skip, limit, count, inlinecount and expand. Pass it inline, as @file, or
as - to read stdin.

The plan is printed as canonical JSON: object keys sorted, so the same
query always renders to the same bytes.`,
		Example: `  odatamongo plan -c products -q '{"filter":{"price":{"$gt":10}},"sort":{"name":1}}'
  odatamongo plan -c products -m model.yaml -q @query.json --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, cmd)
		},
	}

	addAdapterFlags(cmd)
	cmd.Flags().StringP("query", "q", "", "query descriptor (Extended JSON, @file or -)")

	return cmd
}

func runPlan(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	v, err := opts.bindFlags(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to bind flags", err)
	}
	collection, err := requireCollection(formatter, v)
	if err != nil {
		return err
	}

	data, err := readInput(cmd, v.GetString("query"))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to read --query", err)
	}
	d, err := query.ParseDescriptor(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --query", err)
	}

	a, err := opts.newAdapter(cmd, formatter, v, nil, nil)
	if err != nil {
		return err
	}

	plan, err := a.Plan(collection, d)
	if err != nil {
		return failCall(formatter, err)
	}
	formatter.VerboseLog("Planned %s on %s", plan.Kind, collection)

	out, err := plan.Render()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("failed to render plan: %v", err), nil)
	}
	return formatter.Raw(out)
}
