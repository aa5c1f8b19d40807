package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stacklens/stacklens/internal"
)

func NewAnalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <description>",
		Short: "Generate a grounded runbook for an incident",
		Long:  `Retrieve similar incidents and ask the configured LLM provider for a runbook grounded in them.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeAnalyzeRunner(a),
	}

	cmd.Flags().StringP("stack", "s", "", "Tech stack of the failing service (java|python|nodejs)")
	cmd.Flags().StringP("error", "e", "", "Raw error message to include in the query")
	cmd.Flags().StringP("provider", "p", "", "LLM provider to use (defaults to config)")
	cmd.Flags().Bool("stream", false, "Stream the runbook as free-form text instead of structured output")
	_ = cmd.MarkFlagRequired("stack")
	return cmd
}

func makeAnalyzeRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		stackFlag, _ := cmd.Flags().GetString("stack")
		errorFlag, _ := cmd.Flags().GetString("error")
		providerFlag, _ := cmd.Flags().GetString("provider")
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
		provider, err := a.openProvider(cmd.Context(), providerFlag)
		if err != nil {
			return err
		}

		analyzer := internal.NewIncidentAnalyzer(pipeline, provider)
		query := internal.Query{
			Description:  strings.Join(args, " "),
			Stack:        stack,
			ErrorMessage: errorFlag,
		}

		if stream, _ := cmd.Flags().GetBool("stream"); stream {
			retrieved, deltas, err := analyzer.AnalyzeStream(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("analyze incident: %w", err)
			}
			printContext(cmd, retrieved)
			out := cmd.OutOrStdout()
			for delta := range deltas {
				fmt.Fprint(out, delta)
			}
			fmt.Fprintln(out)
			return nil
		}

		analysis, err := analyzer.Analyze(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("analyze incident: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}

		printContext(cmd, &analysis.Context)
		printRunbook(cmd, analysis.Runbook)
		return nil
	}
}

func printRunbook(cmd *cobra.Command, rb internal.Runbook) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Likely root cause:")
	fmt.Fprintf(out, "  %s\n\n", rb.RootCause)

	if len(rb.Solution) > 0 {
		fmt.Fprintln(out, "Suggested steps:")
		for i, step := range rb.Solution {
			fmt.Fprintf(out, "  %d. %s\n", i+1, step)
		}
		fmt.Fprintln(out)
	}

	if rb.Reasoning != "" {
		fmt.Fprintln(out, "Reasoning:")
		fmt.Fprintf(out, "  %s\n", rb.Reasoning)
	}
}
