// Package model defines the data types shared by every pipeline stage:
// discovered files, parsed source and documentation models, detected
// relationships, and the serialized project map.
package model

import "time"

// FileCategory classifies a discovered file for analyzer dispatch.
type FileCategory string

const (
	CategoryStructural    FileCategory = "structural"
	CategoryDocumentation FileCategory = "documentation"
	CategoryOther         FileCategory = "other"
)

// DiscoveredFile is an immutable record emitted by file discovery.
// A new discovery pass supersedes the previous result set wholesale.
type DiscoveredFile struct {
	AbsPath  string       `json:"abs_path"`
	RelPath  string       `json:"rel_path"`
	Category FileCategory `json:"category"`
	Size     int64        `json:"size"`
	ModTime  time.Time    `json:"mod_time"`
	// Hash is the hex SHA-256 of the file content, used for change
	// suppression in watch mode. Empty when the file was unreadable.
	Hash string `json:"hash,omitempty"`
}

// LineRange is a 1-based inclusive source line span.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Module is the structured model of one parsed structural-source file.
// Value object: no mutation after construction.
type Module struct {
	Name      string               `json:"name"` // dotted, e.g. "pkg.util"
	File      string               `json:"file"` // relative path
	Imports   []string             `json:"imports,omitempty"`
	Classes   map[string]*Class    `json:"classes,omitempty"`
	Functions map[string]*Function `json:"functions,omitempty"`
	Variables map[string]*Variable `json:"variables,omitempty"`
	Docstring string               `json:"docstring,omitempty"`
	Lines     LineRange            `json:"lines"`
}

// Class is owned exclusively by its Module.
type Class struct {
	Name       string               `json:"name"`
	Bases      []string             `json:"bases,omitempty"` // as written, duplicates permitted
	Methods    map[string]*Function `json:"methods,omitempty"`
	Variables  map[string]*Variable `json:"variables,omitempty"`
	Decorators []string             `json:"decorators,omitempty"`
	Docstring  string               `json:"docstring,omitempty"`
	Lines      LineRange            `json:"lines"`
}

// Function is owned by its Module or its Class.
type Function struct {
	Name       string   `json:"name"`
	Params     []string `json:"params,omitempty"`
	ReturnType string   `json:"return_type,omitempty"`
	Decorators []string `json:"decorators,omitempty"`
	IsMethod   bool     `json:"is_method,omitempty"`
	IsProperty bool     `json:"is_property,omitempty"`
	// Calls holds callee names as written, attribute chains collapsed to
	// "object.attr". Resolution happens in relationship detection.
	Calls          []string  `json:"calls,omitempty"`
	ReferencedVars []string  `json:"referenced_vars,omitempty"`
	Docstring      string    `json:"docstring,omitempty"`
	Lines          LineRange `json:"lines"`
}

// Variable is a module-scope or class-scope binding. Locals inside function
// bodies are recorded as ReferencedVars on the Function instead.
type Variable struct {
	Name         string    `json:"name"`
	InferredType string    `json:"inferred_type,omitempty"`
	IsConstant   bool      `json:"is_constant,omitempty"`
	Value        string    `json:"value,omitempty"` // literal snippet
	Lines        LineRange `json:"lines"`
}

// Section is one headed region of a documentation file.
type Section struct {
	Heading string    `json:"heading"`
	Level   int       `json:"level"`
	Excerpt string    `json:"excerpt,omitempty"`
	Lines   LineRange `json:"lines"`
}

// Mention is a raw code-identifier candidate found in documentation text.
// It carries no resolution; detection decides whether it names anything.
type Mention struct {
	Text    string `json:"text"`
	Section int    `json:"section"` // index into Document.Sections
	Line    int    `json:"line"`
}

// Document is the structured model of one documentation file.
type Document struct {
	File     string    `json:"file"` // relative path
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections,omitempty"`
	Mentions []Mention `json:"mentions,omitempty"`
}

// ElementKind identifies what an ElementRef points at.
type ElementKind string

const (
	ElemModule   ElementKind = "module"
	ElemClass    ElementKind = "class"
	ElemFunction ElementKind = "function"
	ElemVariable ElementKind = "variable"
	ElemDocument ElementKind = "document"
)

// ElementRef addresses an element inside the same run's model collections.
// FQN is dotted ("pkg.util.Helper.run") for code elements and the relative
// file path for documents.
type ElementRef struct {
	Kind ElementKind `json:"kind"`
	FQN  string      `json:"fqn"`
	File string      `json:"file"`
}

// RelationshipKind enumerates the typed edges detection can produce.
type RelationshipKind string

const (
	RelImport          RelationshipKind = "import"
	RelInheritance     RelationshipKind = "inheritance"
	RelCall            RelationshipKind = "call"
	RelAttributeAccess RelationshipKind = "attribute-access"
	RelDocReference    RelationshipKind = "doc-reference"
)

// MatchKind describes the strength of the evidence behind a relationship.
// It is the sole input of confidence scoring.
type MatchKind string

const (
	MatchExactFQN MatchKind = "exact-fqn"
	MatchSameFile MatchKind = "same-file"
	MatchSameDir  MatchKind = "same-dir"
	MatchCrossDir MatchKind = "cross-dir"
	MatchDocFuzzy MatchKind = "doc-fuzzy"
)

// Evidence records the raw text that produced a relationship and how the
// target was matched.
type Evidence struct {
	Match MatchKind `json:"match"`
	Text  string    `json:"text"` // import identifier, base name, callee, mention
}

// Relationship is a derived, immutable edge. Edges are regenerated wholesale
// on every pipeline run; both endpoints must resolve within the same run.
type Relationship struct {
	Source     ElementRef       `json:"source"`
	Target     ElementRef       `json:"target"`
	Kind       RelationshipKind `json:"kind"`
	Evidence   Evidence         `json:"evidence"`
	Confidence float64          `json:"confidence"`
}

// FileError is the non-fatal per-file error record accumulated on the
// pipeline context. Files that error are excluded from downstream stages
// but surfaced here so nothing is silently omitted.
type FileError struct {
	File    string `json:"file"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ProjectMap is the versioned output artifact of one pipeline run.
type ProjectMap struct {
	SchemaVersion string          `json:"schema_version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	RunID         string          `json:"run_id"`
	Modules       []*Module       `json:"modules"`
	Documents     []*Document     `json:"documents"`
	Relationships []Relationship  `json:"relationships"`
	Errors        []FileError     `json:"errors,omitempty"`
	ChunkIndex    []ChunkManifest `json:"chunk_index,omitempty"`
}

// ChunkManifest summarizes one chunk in the parent map's chunk index.
type ChunkManifest struct {
	Index     int `json:"index"`
	Modules   int `json:"modules"`
	Documents int `json:"documents"`
	Elements  int `json:"elements"`
}

// MapChunk is one bounded partition of a ProjectMap. A module's classes and
// functions never split across chunks.
type MapChunk struct {
	SchemaVersion string         `json:"schema_version"`
	GeneratedAt   time.Time      `json:"generated_at"`
	RunID         string         `json:"run_id"`
	ChunkIndex    int            `json:"chunk_index"`
	ChunkTotal    int            `json:"chunk_total"`
	Modules       []*Module      `json:"modules"`
	Documents     []*Document    `json:"documents"`
	Relationships []Relationship `json:"relationships"`
}

// Weight is the element count a module contributes to chunk packing:
// the module itself plus its classes, functions, methods, and variables.
func (m *Module) Weight() int {
	w := 1 + len(m.Functions) + len(m.Variables)
	for _, c := range m.Classes {
		w += 1 + len(c.Methods) + len(c.Variables)
	}
	return w
}

// Weight is the element count a document contributes to chunk packing.
func (d *Document) Weight() int {
	return 1 + len(d.Sections)
}
