package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/codeatlas/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted runs",
	Long:  "Lists runs saved to the SQLite database, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print a persisted run's map",
	Long:  "Prints the stored JSON payloads for a run. With no argument, prints the latest run.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a persisted run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

// openStore opens the configured database, requiring one to be set.
func openStore() (*store.Store, error) {
	dbPath := flagDB
	if dbPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Store.Path
	}
	if dbPath == "" {
		return nil, fmt.Errorf("no database configured: pass --db or set store.path")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %s", dbPath)
	}
	st, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runsToJSON(runs))
	}
	formatRunsText(os.Stdout, runs)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var runID string
	if len(args) > 0 {
		runID = args[0]
	} else {
		latest, err := st.LatestRun()
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("no runs stored")
		}
		runID = latest.RunID
	}

	payloads, err := st.ChunkPayloads(runID)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	for _, p := range payloads {
		fmt.Print(p)
	}
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteRun(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Deleted run %s\n", args[0])
	return nil
}
