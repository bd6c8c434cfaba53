package codeatlas

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jward/codeatlas/internal/discover"
	"github.com/jward/codeatlas/internal/docs"
	"github.com/jward/codeatlas/internal/mapgen"
	"github.com/jward/codeatlas/internal/model"
	"github.com/jward/codeatlas/internal/relate"
	"github.com/jward/codeatlas/internal/structural"
)

// State tracks a Pipeline through its run.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateAnalyzing
	StateDetecting
	StateScoring
	StateGenerating
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"idle", "discovering", "analyzing", "detecting", "scoring", "generating", "done", "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Context is the carrier threaded between stages. Only the coordinator
// writes it; stages return their outputs and the coordinator commits them,
// which rules out data races by construction. It is created at run start
// and discarded once the map is generated.
type Context struct {
	Root          string
	Files         []model.DiscoveredFile
	Modules       []*model.Module
	Documents     []*model.Document
	Relationships []model.Relationship
	// Errors accumulates non-fatal per-file records across all stages.
	Errors []model.FileError
}

// Analysis is the tagged per-file analyzer output: exactly one field is
// set, matching the file's category.
type Analysis struct {
	Module   *model.Module
	Document *model.Document
}

// AnalyzerEntry pairs a file predicate with the analyzer run on matches.
// The pipeline holds an explicit table of these instead of a global
// registry, so analyzer selection is testable in isolation.
type AnalyzerEntry struct {
	Match func(model.DiscoveredFile) bool
	Run   func(ctx context.Context, f model.DiscoveredFile, src []byte) (Analysis, error)
}

// Result is what a completed run hands back. Errors lists every file that
// was skipped or failed, so partial data is never silent.
type Result struct {
	Map    *model.ProjectMap
	Chunks []*model.MapChunk
	Errors []model.FileError
}

// Pipeline coordinates the analysis stages over a shared Context. A
// Pipeline is reusable; each Run builds a fresh Context.
type Pipeline struct {
	include        []string
	exclude        []string
	workers        int
	chunkThreshold int
	readTimeout    time.Duration
	schemaVersion  string
	logger         *slog.Logger
	analyzers      []AnalyzerEntry
	genOpts        []mapgen.Option

	detector *relate.Detector
	scorer   *relate.Scorer

	mu    sync.Mutex
	state State
}

// New builds a Pipeline with the default analyzer table (tree-sitter
// Python for structural sources, markdown for documentation).
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		readTimeout:   discover.DefaultReadTimeout,
		schemaVersion: mapgen.SchemaVersion,
		logger:        slog.Default(),
		detector:      relate.NewDetector(),
		scorer:        relate.NewScorer(),
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.analyzers == nil {
		p.analyzers = DefaultAnalyzers()
	}
	return p
}

// DefaultAnalyzers returns the standard analyzer table.
func DefaultAnalyzers() []AnalyzerEntry {
	sa := structural.NewAnalyzer()
	da := docs.NewAnalyzer()
	return []AnalyzerEntry{
		{
			Match: func(f model.DiscoveredFile) bool { return f.Category == model.CategoryStructural },
			Run: func(ctx context.Context, f model.DiscoveredFile, src []byte) (Analysis, error) {
				mod, err := sa.Analyze(ctx, f, src)
				return Analysis{Module: mod}, err
			},
		},
		{
			Match: func(f model.DiscoveredFile) bool { return f.Category == model.CategoryDocumentation },
			Run: func(ctx context.Context, f model.DiscoveredFile, src []byte) (Analysis, error) {
				doc, err := da.Analyze(ctx, f, src)
				return Analysis{Document: doc}, err
			},
		},
	}
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.logger.Debug("pipeline state", "state", s.String())
}

// Run executes the full pipeline against root. Fatal errors (invalid root,
// cancellation, an invariant violation at generation) abort the run and
// leave the pipeline in StateFailed. Per-file errors never abort; they are
// returned on the Result and the affected files are excluded downstream.
func (p *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()

	p.setState(StateDiscovering)
	files, skipped, err := discover.Discover(root, discover.Options{
		Include:     p.include,
		Exclude:     p.exclude,
		ReadTimeout: p.readTimeout,
		Logger:      p.logger,
	})
	if err != nil {
		p.setState(StateFailed)
		return nil, err
	}
	pc := &Context{Root: root, Files: files, Errors: skipped}
	p.logger.Info("discovery complete", "files", len(files), "skipped", len(skipped))

	p.setState(StateAnalyzing)
	if err := p.analyzeFiles(ctx, pc); err != nil {
		p.setState(StateFailed)
		return nil, err
	}
	p.logger.Info("analysis complete",
		"modules", len(pc.Modules), "documents", len(pc.Documents), "errors", len(pc.Errors))

	p.setState(StateDetecting)
	if err := ctx.Err(); err != nil {
		p.setState(StateFailed)
		return nil, err
	}
	pc.Relationships = p.detector.Detect(pc.Modules, pc.Documents)

	p.setState(StateScoring)
	pc.Relationships = p.scorer.ScoreAll(pc.Relationships)

	p.setState(StateGenerating)
	genOpts := append([]mapgen.Option{
		mapgen.WithSchemaVersion(p.schemaVersion),
		mapgen.WithChunkThreshold(p.chunkThreshold),
	}, p.genOpts...)
	pm, chunks, err := mapgen.NewGenerator(genOpts...).Generate(
		pc.Modules, pc.Documents, pc.Relationships, pc.Errors)
	if err != nil {
		p.setState(StateFailed)
		return nil, err
	}

	p.setState(StateDone)
	p.logger.Info("run complete",
		"relationships", len(pm.Relationships), "chunks", len(chunks),
		"elapsed", time.Since(start))
	return &Result{Map: pm, Chunks: chunks, Errors: pm.Errors}, nil
}
