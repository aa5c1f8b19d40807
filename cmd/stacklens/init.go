package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stacklens/stacklens/internal"
)

func NewInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  `Write a config file with the default search, index and store settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", a.cfgPath)
			}

			if err := internal.SaveConfig(a.cfgPath, internal.DefaultConfig()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", a.cfgPath)
			return nil
		},
	}
}
