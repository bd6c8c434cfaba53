package codeatlas

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/jward/codeatlas/internal/discover"
	"github.com/jward/codeatlas/internal/docs"
	"github.com/jward/codeatlas/internal/model"
	"github.com/jward/codeatlas/internal/structural"
)

// workItem holds everything an analysis worker needs for one file.
type workItem struct {
	file  model.DiscoveredFile
	entry *AnalyzerEntry
}

// analysisResult is one worker's tagged output.
type analysisResult struct {
	file     model.DiscoveredFile
	analysis Analysis
	err      error
}

// analyzeFiles runs per-file analysis in three phases:
//
//	Phase A (serial):  match files against the analyzer table.
//	Phase B (parallel): read and analyze on a worker pool.
//	Phase C (serial):  commit results to the shared Context.
//
// The commit phase starts only after every worker has finished: detection
// needs the complete model set, so this is a full barrier, not a streaming
// merge. On cancellation the partial results are discarded and the Context
// is left untouched.
func (p *Pipeline) analyzeFiles(ctx context.Context, pc *Context) error {
	// ---- Phase A: match files to analyzers ----
	var items []workItem
	for _, f := range pc.Files {
		for i := range p.analyzers {
			if p.analyzers[i].Match(f) {
				items = append(items, workItem{file: f, entry: &p.analyzers[i]})
				break
			}
		}
	}
	if len(items) == 0 {
		return ctx.Err()
	}

	// ---- Phase B: parallel analysis ----
	numWorkers := p.workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(items) {
		numWorkers = len(items)
	}

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	resultCh := make(chan analysisResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultCh <- p.analyzeOne(ctx, item)
			}
		}()
	}

	wg.Wait()
	close(resultCh)

	if err := ctx.Err(); err != nil {
		return err
	}

	// ---- Phase C: serial commit through the coordinator ----
	for res := range resultCh {
		if res.err != nil {
			pc.Errors = append(pc.Errors, fileError(res.file, res.err))
			continue
		}
		switch {
		case res.analysis.Module != nil:
			pc.Modules = append(pc.Modules, res.analysis.Module)
		case res.analysis.Document != nil:
			pc.Documents = append(pc.Documents, res.analysis.Document)
		}
	}
	return nil
}

// analyzeOne reads one file with a bounded timeout and runs its analyzer.
func (p *Pipeline) analyzeOne(ctx context.Context, item workItem) analysisResult {
	content, err := discover.ReadFile(item.file.AbsPath, p.readTimeout)
	if err != nil {
		return analysisResult{file: item.file, err: err}
	}
	analysis, err := item.entry.Run(ctx, item.file, content)
	return analysisResult{file: item.file, analysis: analysis, err: err}
}

// fileError normalizes an analyzer failure into the per-file record.
func fileError(f model.DiscoveredFile, err error) model.FileError {
	var sa *structural.AnalysisError
	if errors.As(err, &sa) {
		return model.FileError{File: sa.File, Stage: "analyze", Message: sa.Message}
	}
	var da *docs.AnalysisError
	if errors.As(err, &da) {
		return model.FileError{File: da.File, Stage: "analyze", Message: da.Message}
	}
	return model.FileError{File: f.RelPath, Stage: "analyze", Message: err.Error()}
}
