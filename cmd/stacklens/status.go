package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show corpus status",
		Long:  `Show how many incidents are stored per stack and how many vectors are indexed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := a.config()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			index, err := a.openIndex(cmd.Context())
			if err != nil {
				return err
			}

			counts, err := store.CountByStack(cmd.Context())
			if err != nil {
				return fmt.Errorf("count incidents: %w", err)
			}
			vectors, err := index.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count vectors: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"incidents": counts,
					"vectors":   vectors,
				})
			}

			total := 0
			for _, stack := range cfg.Stacks {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d\n", stack, counts[stack])
				total += counts[stack]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total    %d incidents, %d vectors\n", total, vectors)
			return nil
		},
	}
}
