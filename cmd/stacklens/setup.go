package main

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/stacklens/stacklens/internal"
)

func NewSetupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup <dataset.json>",
		Short: "Import an incident dataset",
		Long:  `Load incidents from a JSON dataset into the metadata store and the vector index.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeSetupRunner(a),
	}

	cmd.Flags().Bool("watch", false, "Re-import when the dataset file changes")
	cmd.Flags().Duration("debounce", 500*time.Millisecond, "Debounce window for batching file changes")
	cmd.Flags().Int("trees", 0, "Number of trees for the vector index build")
	return cmd
}

func makeSetupRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		datasetPath := args[0]
		watch, _ := cmd.Flags().GetBool("watch")
		debounce, _ := cmd.Flags().GetDuration("debounce")
		trees, _ := cmd.Flags().GetInt("trees")

		cfg, err := a.config()
		if err != nil {
			return err
		}
		if trees <= 0 {
			trees = cfg.Index.NumTrees
		}

		store, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		index, err := a.openIndex(cmd.Context())
		if err != nil {
			return err
		}
		embedder, err := a.openEmbedder(cmd.Context(), nil)
		if err != nil {
			return err
		}

		importer := internal.NewImporter(store, index, embedder, trees, a.log)

		runImport := func() error {
			incidents, err := internal.LoadDataset(datasetPath, cfg.Stacks)
			if err != nil {
				return err
			}
			if err := importer.Import(cmd.Context(), incidents); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d incidents from %s\n", len(incidents), datasetPath)
			return nil
		}

		if err := runImport(); err != nil {
			return err
		}
		if !watch {
			return nil
		}

		return watchDataset(cmd, datasetPath, debounce, runImport)
	}
}

func watchDataset(cmd *cobra.Command, path string, debounce time.Duration, runImport func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch dataset: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", path)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors replace files on save; re-arm the watch for the
			// new inode.
			if event.Op&fsnotify.Rename != 0 {
				_ = watcher.Add(path)
			}
			if !pending {
				timer.Reset(debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-timer.C:
			pending = false
			if err := runImport(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "re-import failed: %v\n", err)
			}
		}
	}
}
