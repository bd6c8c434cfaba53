// Package codeatlas builds machine-readable maps of a source tree. It
// discovers files, parses structural sources and documentation into models
// with tree-sitter and a markdown section parser, links code and docs
// through typed, confidence-scored relationships, and emits a versioned,
// optionally chunked ProjectMap.
//
// # Pipeline
//
// A run moves through fixed stages:
//
//  1. Discover: walk the root, apply include/exclude globs, classify each
//     file as structural source, documentation, or other.
//
//  2. Analyze: parse every classified file on a worker pool, structural
//     sources into Module models (imports, classes, functions, variables,
//     calls) and documentation into Document models (sections, mentions).
//     Per-file failures are recorded and the file drops out; the run
//     continues.
//
//  3. Detect: resolve imports, base classes, callees, referenced
//     variables, and documentation mentions into typed relationship edges.
//     Only edges whose target exists in this run are emitted.
//
//  4. Score: assign each edge a deterministic confidence from its match
//     evidence.
//
//  5. Generate: assemble the ProjectMap, verify no edge dangles, and chunk
//     it when the element budget is exceeded.
//
// # Usage
//
// Create a Pipeline and run it against a project root:
//
//	p := codeatlas.New(codeatlas.WithChunkThreshold(500))
//	result, err := p.Run(ctx, "path/to/project")
//	if err != nil { ... }
//
//	data, err := codeatlas.Marshal(result.Map)
//
// Result carries the map, its chunks, and the accumulated per-file error
// records, so callers can tell "succeeded with partial data" apart from
// "succeeded cleanly".
package codeatlas
