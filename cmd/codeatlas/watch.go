package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/codeatlas"
	"github.com/jward/codeatlas/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Regenerate the project map whenever the tree changes",
	Long:  "Runs an initial generation, then watches the tree and re-runs the pipeline after each debounced batch of changes.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&flagInclude, "include", nil, "glob patterns restricting discovery (repeatable)")
	watchCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "glob patterns excluded from discovery (repeatable)")
	watchCmd.Flags().IntVar(&flagChunkElements, "chunk-elements", 0, "split output into chunks of at most N elements (0 = never)")
	watchCmd.Flags().IntVar(&flagWorkers, "workers", 0, "analysis worker count (0 = number of CPUs)")
	watchCmd.Flags().StringVar(&flagOut, "out", "", "output path (default: stdout)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyGenerateFlags(cfg)

	targetDir, err := resolveTargetDir(args, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := codeatlas.New(pipelineOptions(cfg)...)

	regenerate := func() {
		start := time.Now()
		result, err := pipeline.Run(ctx, targetDir)
		if err != nil {
			slog.Error("Generation failed", "error", err)
			return
		}
		if err := persistRun(cfg, targetDir, result); err != nil {
			slog.Error("Persisting run failed", "error", err)
			return
		}
		if err := outputResult(cfg, result); err != nil {
			slog.Error("Writing map failed", "error", err)
			return
		}
		fmt.Fprintf(os.Stderr, "Regenerated in %s (%d modules, %d documents, %d relationships)\n",
			time.Since(start).Round(time.Millisecond),
			len(result.Map.Modules),
			len(result.Map.Documents),
			len(result.Map.Relationships),
		)
	}

	regenerate()

	watcher, err := watch.NewWatcher(watch.Config{
		Root:     targetDir,
		Debounce: cfg.Watch.Debounce,
		Logger:   slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Watch stopped")
			return nil
		case change, ok := <-watcher.Changes():
			if !ok {
				return nil
			}
			slog.Info("Changes detected", "files", len(change.Paths))
			regenerate()
		}
	}
}
