package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/codeatlas"
	"github.com/jward/codeatlas/internal/config"
	"github.com/jward/codeatlas/internal/store"
)

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "codeatlas",
	Short:         "Static analysis maps of Python codebases and their docs",
	Long:          "Codeatlas scans a source tree, parses Python modules and markdown documents, detects code-to-doc relationships, and emits a versioned project map.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return validateFormat(flagFormat)
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database for run persistence (default: none)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: codeatlas.yaml discovered upward)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
}

func setupLogging() {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig resolves configuration, honoring an explicit --config path
// over the layered default search.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		cfg, err := config.LoadFromFile(flagConfig)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(slog.Default()).Load()
}

var (
	flagInclude       []string
	flagExclude       []string
	flagChunkElements int
	flagWorkers       int
	flagOut           string
)

var generateCmd = &cobra.Command{
	Use:   "generate [path]",
	Short: "Analyze a source tree and emit a project map",
	Long:  "Discovers Python and markdown files, analyzes them in parallel, detects and scores relationships, and writes the resulting map as JSON.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringSliceVar(&flagInclude, "include", nil, "glob patterns restricting discovery (repeatable)")
	generateCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "glob patterns excluded from discovery (repeatable)")
	generateCmd.Flags().IntVar(&flagChunkElements, "chunk-elements", 0, "split output into chunks of at most N elements (0 = never)")
	generateCmd.Flags().IntVar(&flagWorkers, "workers", 0, "analysis worker count (0 = number of CPUs)")
	generateCmd.Flags().StringVar(&flagOut, "out", "", "output path (default: stdout)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyGenerateFlags(cfg)

	targetDir, err := resolveTargetDir(args, cfg)
	if err != nil {
		return err
	}

	pipeline := codeatlas.New(pipelineOptions(cfg)...)
	result, err := pipeline.Run(cmd.Context(), targetDir)
	if err != nil {
		return fmt.Errorf("generating map: %w", err)
	}

	if err := persistRun(cfg, targetDir, result); err != nil {
		return err
	}

	if err := outputResult(cfg, result); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Mapped %s in %s (%d modules, %d documents, %d relationships, %d file errors)\n",
		targetDir,
		time.Since(start).Round(time.Millisecond),
		len(result.Map.Modules),
		len(result.Map.Documents),
		len(result.Map.Relationships),
		len(result.Errors),
	)

	return nil
}

// applyGenerateFlags layers explicit flags over the loaded config.
func applyGenerateFlags(cfg *config.Config) {
	if len(flagInclude) > 0 {
		cfg.Scan.Include = flagInclude
	}
	if len(flagExclude) > 0 {
		cfg.Scan.Exclude = flagExclude
	}
	if flagWorkers != 0 {
		cfg.Scan.Workers = flagWorkers
	}
	if flagChunkElements != 0 {
		cfg.Map.ChunkElements = flagChunkElements
	}
	if flagOut != "" {
		cfg.Map.Out = flagOut
	}
	if flagDB != "" {
		cfg.Store.Path = flagDB
	}
}

func pipelineOptions(cfg *config.Config) []codeatlas.Option {
	opts := []codeatlas.Option{
		codeatlas.WithLogger(slog.Default()),
		codeatlas.WithInclude(cfg.Scan.Include...),
		codeatlas.WithExclude(cfg.Scan.Exclude...),
		codeatlas.WithWorkers(cfg.Scan.Workers),
		codeatlas.WithChunkThreshold(cfg.Map.ChunkElements),
	}
	if cfg.Scan.ReadTimeout > 0 {
		opts = append(opts, codeatlas.WithReadTimeout(cfg.Scan.ReadTimeout))
	}
	return opts
}

// persistRun saves the result when a database is configured.
func persistRun(cfg *config.Config, root string, result *codeatlas.Result) error {
	if cfg.Store.Path == "" {
		return nil
	}
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return err
	}
	if err := st.SaveRun(root, result.Map, result.Chunks); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// outputResult writes the map, and any chunks, to the configured
// destination. Chunk files sit next to the parent map as
// <out>.chunk<N>.json.
func outputResult(cfg *config.Config, result *codeatlas.Result) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}

	data, err := codeatlas.Marshal(result.Map)
	if err != nil {
		return err
	}

	if cfg.Map.Out == "" || cfg.Map.Out == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
		for _, c := range result.Chunks {
			chunkData, err := codeatlas.Marshal(c)
			if err != nil {
				return err
			}
			if _, err := os.Stdout.Write(chunkData); err != nil {
				return err
			}
		}
		return nil
	}

	if err := os.WriteFile(cfg.Map.Out, data, 0o644); err != nil {
		return fmt.Errorf("writing map: %w", err)
	}
	for _, c := range result.Chunks {
		chunkData, err := codeatlas.Marshal(c)
		if err != nil {
			return err
		}
		path := chunkPath(cfg.Map.Out, c.ChunkIndex)
		if err := os.WriteFile(path, chunkData, 0o644); err != nil {
			return fmt.Errorf("writing chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return nil
}

// chunkPath derives a chunk file path from the parent map path.
func chunkPath(out string, index int) string {
	ext := filepath.Ext(out)
	base := strings.TrimSuffix(out, ext)
	if ext == "" {
		ext = ".json"
	}
	return fmt.Sprintf("%s.chunk%d%s", base, index, ext)
}

// resolveTargetDir returns the absolute path of the directory to analyze.
func resolveTargetDir(args []string, cfg *config.Config) (string, error) {
	dir := cfg.Scan.Root
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
