package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "stacklens",
		Short:         "Hybrid incident retrieval across tech stacks",
		Long:          `Search historical production incidents by semantic similarity and surface cross-stack root-cause insights.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				a.cfgPath = path
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				log, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				a.log = log
			}
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	addSubcommands(rootCmd, a)

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", defaultConfigPath, "Path to the config file")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

func addSubcommands(root *cobra.Command, a *app) {
	root.AddCommand(
		NewInitCmd(a),
		NewSetupCmd(a),
		NewSearchCmd(a),
		NewAnalyzeCmd(a),
		NewStatusCmd(a),
		NewModelCmd(a),
	)
}
