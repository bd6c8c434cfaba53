package codeatlas

import (
	"log/slog"
	"time"

	"github.com/jward/codeatlas/internal/mapgen"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInclude restricts discovery to files matching the given doublestar
// patterns. Empty means all files.
func WithInclude(patterns ...string) Option {
	return func(p *Pipeline) { p.include = patterns }
}

// WithExclude replaces the default exclude patterns.
func WithExclude(patterns ...string) Option {
	return func(p *Pipeline) { p.exclude = patterns }
}

// WithWorkers sets the analysis worker count. Zero or less means one
// worker per CPU.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithChunkThreshold sets the element budget per output chunk. Zero
// disables chunking.
func WithChunkThreshold(n int) Option {
	return func(p *Pipeline) { p.chunkThreshold = n }
}

// WithReadTimeout bounds each per-file read so one unreadable or enormous
// file cannot stall the run.
func WithReadTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.readTimeout = d }
}

// WithSchemaVersion overrides the schema version stamped on output maps.
func WithSchemaVersion(v string) Option {
	return func(p *Pipeline) { p.schemaVersion = v }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAnalyzers replaces the analyzer table. Entries are tried in order;
// the first predicate match wins.
func WithAnalyzers(entries ...AnalyzerEntry) Option {
	return func(p *Pipeline) { p.analyzers = entries }
}

// WithClock pins the generation timestamp source, for reproducibility
// tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.genOpts = append(p.genOpts, mapgen.WithClock(now)) }
}

// WithRunIDSource pins run-ID generation, for reproducibility tests.
func WithRunIDSource(fn func() string) Option {
	return func(p *Pipeline) { p.genOpts = append(p.genOpts, mapgen.WithRunIDSource(fn)) }
}
