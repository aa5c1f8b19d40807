package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stacklens/stacklens/internal"
)

func NewModelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the local embedding model",
	}

	cmd.AddCommand(
		newModelDownloadCmd(a),
		newModelPathCmd(),
	)

	return cmd
}

func newModelDownloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the embedding model into the cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			progress := func(written, total int64) {
				if total > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\rDownloading model... %d%%", written*100/total)
				}
			}

			embedder, err := a.openEmbedder(cmd.Context(), progress)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nModel %s ready (%d dimensions)\n", embedder.Model(), embedder.Dimension())
			return nil
		},
	}
}

func newModelPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the model cache directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := internal.DefaultCacheDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}
