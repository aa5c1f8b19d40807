package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stacklens/stacklens/internal"
)

func NewSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <description>",
		Short: "Find similar incidents",
		Long:  `Search the incident corpus for failures similar to the described one, split into same-stack matches and cross-stack insights.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeSearchRunner(a),
	}

	cmd.Flags().StringP("stack", "s", "", "Tech stack of the failing service (java|python|nodejs)")
	cmd.Flags().StringP("error", "e", "", "Raw error message to include in the query")
	_ = cmd.MarkFlagRequired("stack")
	return cmd
}

func makeSearchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		stackFlag, _ := cmd.Flags().GetString("stack")
		errorFlag, _ := cmd.Flags().GetString("error")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := a.config()
		if err != nil {
			return err
		}
		stack, err := internal.ParseStack(stackFlag, cfg.Stacks)
		if err != nil {
			return err
		}

		pipeline, err := a.buildPipeline(cmd.Context())
		if err != nil {
			return err
		}

		result, err := pipeline.Search(cmd.Context(), internal.Query{
			Description:  strings.Join(args, " "),
			Stack:        stack,
			ErrorMessage: errorFlag,
		})
		if err != nil {
			return fmt.Errorf("search incidents: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printContext(cmd, result)
		return nil
	}
}

func printContext(cmd *cobra.Command, ctx *internal.IncidentContext) {
	out := cmd.OutOrStdout()

	if ctx.Degraded {
		fmt.Fprintf(out, "WARNING: degraded results (%s)\n\n", ctx.DegradedReason)
	}

	if len(ctx.SameStack) == 0 && len(ctx.CrossStack) == 0 {
		fmt.Fprintln(out, "No similar incidents found.")
		return
	}

	if len(ctx.SameStack) > 0 {
		fmt.Fprintf(out, "Same-stack matches (%s):\n", ctx.Query.Stack)
		for _, m := range ctx.SameStack {
			fmt.Fprintf(out, "  %3.0f%%  %-12s %s\n", m.Similarity*100, m.Incident.ID, m.Incident.Title)
			fmt.Fprintf(out, "        root cause: %s\n", m.Incident.RootCause)
		}
		fmt.Fprintln(out)
	}

	if len(ctx.CrossStack) > 0 {
		fmt.Fprintln(out, "Cross-stack insights:")
		for _, insight := range ctx.CrossStack {
			fmt.Fprintf(out, "  %s (seen on %s)\n", insight.RootCause, stackNames(insight.Stacks))
			for _, m := range insight.Incidents {
				fmt.Fprintf(out, "    %3.0f%%  %-12s %s [%s]\n", m.Similarity*100, m.Incident.ID, m.Incident.Title, m.Incident.Stack)
			}
		}
	}
}

func stackNames(stacks []internal.Stack) string {
	names := make([]string, len(stacks))
	for i, s := range stacks {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}
