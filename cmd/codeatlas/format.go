package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jward/codeatlas"
	"github.com/jward/codeatlas/internal/store"
)

// formatRunsText formats persisted runs as aligned columns.
func formatRunsText(w io.Writer, runs []store.RunInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tGENERATED\tROOT\tMODULES\tDOCS\tRELS\tERRORS\tCHUNKS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.RunID, r.GeneratedAt.Format(time.RFC3339), r.Root,
			r.Modules, r.Documents, r.Relationships, r.Errors, r.ChunkCount)
	}
	tw.Flush()
}

// runJSON is the listing shape for --format json.
type runJSON struct {
	RunID         string    `json:"run_id"`
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Root          string    `json:"root"`
	Modules       int       `json:"modules"`
	Documents     int       `json:"documents"`
	Relationships int       `json:"relationships"`
	Errors        int       `json:"errors"`
	ChunkCount    int       `json:"chunk_count"`
}

func runsToJSON(runs []store.RunInfo) []runJSON {
	out := make([]runJSON, 0, len(runs))
	for _, r := range runs {
		out = append(out, runJSON{
			RunID:         r.RunID,
			SchemaVersion: r.SchemaVersion,
			GeneratedAt:   r.GeneratedAt,
			Root:          r.Root,
			Modules:       r.Modules,
			Documents:     r.Documents,
			Relationships: r.Relationships,
			Errors:        r.Errors,
			ChunkCount:    r.ChunkCount,
		})
	}
	return out
}

// outputResultText prints a human-readable summary of a generated map.
func outputResultText(w io.Writer, result *codeatlas.Result) error {
	pm := result.Map
	fmt.Fprintln(w, "Project Map")
	fmt.Fprintln(w, "===========")
	fmt.Fprintf(w, "Run: %s\n", pm.RunID)
	fmt.Fprintf(w, "Schema: %s\n", pm.SchemaVersion)
	fmt.Fprintf(w, "Generated: %s\n", pm.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Modules: %d\n", len(pm.Modules))
	fmt.Fprintf(w, "Documents: %d\n", len(pm.Documents))
	fmt.Fprintf(w, "Relationships: %d\n", len(pm.Relationships))
	if len(result.Chunks) > 0 {
		fmt.Fprintf(w, "Chunks: %d\n", len(result.Chunks))
	}
	fmt.Fprintln(w)

	if len(pm.Relationships) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tKIND\tTARGET\tCONFIDENCE")
		for _, rel := range pm.Relationships {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\n",
				rel.Source.FQN, rel.Kind, rel.Target.FQN, rel.Confidence)
		}
		tw.Flush()
	}

	if len(pm.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "File Errors:")
		for _, fe := range pm.Errors {
			fmt.Fprintf(w, "  %s (%s): %s\n", fe.File, fe.Stage, fe.Message)
		}
	}

	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
