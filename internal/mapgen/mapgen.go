// Package mapgen assembles the versioned ProjectMap artifact: deterministic
// ordering, the dangling-edge invariant check, optional module-atomic
// chunking, and stable JSON serialization.
package mapgen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jward/codeatlas/internal/model"
)

// SchemaVersion identifies the current output schema.
const SchemaVersion = "1.0.0"

// SerializationError is fatal: the map cannot be produced, e.g. a dangling
// relationship slipped past detection.
type SerializationError struct {
	Reason string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("generate map: %s", e.Reason)
}

// Generator builds ProjectMaps. The clock and run-ID source are injectable
// so tests can pin them.
type Generator struct {
	schemaVersion  string
	chunkThreshold int // element budget per chunk; 0 disables chunking
	now            func() time.Time
	newRunID       func() string
}

// Option configures a Generator.
type Option func(*Generator)

// WithSchemaVersion overrides the schema version stamped on output.
func WithSchemaVersion(v string) Option {
	return func(g *Generator) { g.schemaVersion = v }
}

// WithChunkThreshold sets the element budget per chunk. Zero disables
// chunking.
func WithChunkThreshold(n int) Option {
	return func(g *Generator) { g.chunkThreshold = n }
}

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRunIDSource overrides run-ID generation.
func WithRunIDSource(fn func() string) Option {
	return func(g *Generator) { g.newRunID = fn }
}

// NewGenerator returns a map generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		schemaVersion: SchemaVersion,
		now:           time.Now,
		newRunID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate assembles the ProjectMap and, when the configured element budget
// is exceeded, its ordered chunks. Aside from the timestamp and run ID, the
// output is a pure function of the inputs.
func (g *Generator) Generate(
	modules []*model.Module,
	documents []*model.Document,
	relationships []model.Relationship,
	errs []model.FileError,
) (*model.ProjectMap, []*model.MapChunk, error) {
	sortedModules := make([]*model.Module, len(modules))
	copy(sortedModules, modules)
	sort.Slice(sortedModules, func(i, j int) bool { return sortedModules[i].File < sortedModules[j].File })

	sortedDocs := make([]*model.Document, len(documents))
	copy(sortedDocs, documents)
	sort.Slice(sortedDocs, func(i, j int) bool { return sortedDocs[i].File < sortedDocs[j].File })

	sortedRels := make([]model.Relationship, len(relationships))
	copy(sortedRels, relationships)
	sort.Slice(sortedRels, func(i, j int) bool { return relLess(sortedRels[i], sortedRels[j]) })

	sortedErrs := make([]model.FileError, len(errs))
	copy(sortedErrs, errs)
	sort.Slice(sortedErrs, func(i, j int) bool {
		if sortedErrs[i].File != sortedErrs[j].File {
			return sortedErrs[i].File < sortedErrs[j].File
		}
		return sortedErrs[i].Stage < sortedErrs[j].Stage
	})

	if err := checkDangling(sortedModules, sortedDocs, sortedRels); err != nil {
		return nil, nil, err
	}

	pm := &model.ProjectMap{
		SchemaVersion: g.schemaVersion,
		GeneratedAt:   g.now().UTC(),
		RunID:         g.newRunID(),
		Modules:       sortedModules,
		Documents:     sortedDocs,
		Relationships: sortedRels,
		Errors:        sortedErrs,
	}

	chunks := g.chunk(pm)
	for _, c := range chunks {
		pm.ChunkIndex = append(pm.ChunkIndex, model.ChunkManifest{
			Index:     c.ChunkIndex,
			Modules:   len(c.Modules),
			Documents: len(c.Documents),
			Elements:  chunkWeight(c),
		})
	}

	return pm, chunks, nil
}

// checkDangling enforces the invariant that every relationship endpoint
// resolves within the same run's collections. Detection never emits such
// edges; finding one here is a contract violation, not a skippable item.
func checkDangling(modules []*model.Module, documents []*model.Document, rels []model.Relationship) error {
	known := make(map[string]bool)
	for _, m := range modules {
		known[string(model.ElemModule)+":"+m.Name] = true
		for clsName, cls := range m.Classes {
			known[string(model.ElemClass)+":"+joinFQN(m.Name, clsName)] = true
			for methName := range cls.Methods {
				known[string(model.ElemFunction)+":"+joinFQN(m.Name, clsName, methName)] = true
			}
			for varName := range cls.Variables {
				known[string(model.ElemVariable)+":"+joinFQN(m.Name, clsName, varName)] = true
			}
		}
		for fnName := range m.Functions {
			known[string(model.ElemFunction)+":"+joinFQN(m.Name, fnName)] = true
		}
		for varName := range m.Variables {
			known[string(model.ElemVariable)+":"+joinFQN(m.Name, varName)] = true
		}
	}
	for _, d := range documents {
		known[string(model.ElemDocument)+":"+d.File] = true
	}

	for _, rel := range rels {
		for _, ref := range []model.ElementRef{rel.Source, rel.Target} {
			if !known[string(ref.Kind)+":"+ref.FQN] {
				return &SerializationError{
					Reason: fmt.Sprintf("dangling %s edge: %s %q not in this run", rel.Kind, ref.Kind, ref.FQN),
				}
			}
		}
	}
	return nil
}

// joinFQN joins dotted-name segments, dropping empty ones. A source file at
// the tree root owns the empty module name, so its elements' FQNs carry no
// leading dot; known-element keys must match that form exactly.
func joinFQN(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// chunk packs modules and documents whole, in order, into element-budgeted
// partitions. A module's classes and functions never split across chunks.
// Each relationship lands in the chunk holding its source element.
func (g *Generator) chunk(pm *model.ProjectMap) []*model.MapChunk {
	if g.chunkThreshold <= 0 {
		return nil
	}
	total := 0
	for _, m := range pm.Modules {
		total += m.Weight()
	}
	for _, d := range pm.Documents {
		total += d.Weight()
	}
	if total <= g.chunkThreshold {
		return nil
	}

	var chunks []*model.MapChunk
	fileToChunk := make(map[string]int)

	current := &model.MapChunk{}
	weight := 0
	flush := func() {
		if len(current.Modules) == 0 && len(current.Documents) == 0 {
			return
		}
		current.SchemaVersion = pm.SchemaVersion
		current.GeneratedAt = pm.GeneratedAt
		current.RunID = pm.RunID
		current.ChunkIndex = len(chunks)
		chunks = append(chunks, current)
		current = &model.MapChunk{}
		weight = 0
	}

	for _, m := range pm.Modules {
		w := m.Weight()
		if weight > 0 && weight+w > g.chunkThreshold {
			flush()
		}
		fileToChunk[m.File] = len(chunks)
		current.Modules = append(current.Modules, m)
		weight += w
	}
	for _, d := range pm.Documents {
		w := d.Weight()
		if weight > 0 && weight+w > g.chunkThreshold {
			flush()
		}
		fileToChunk[d.File] = len(chunks)
		current.Documents = append(current.Documents, d)
		weight += w
	}
	flush()

	for _, rel := range pm.Relationships {
		i, ok := fileToChunk[rel.Source.File]
		if !ok {
			continue
		}
		chunks[i].Relationships = append(chunks[i].Relationships, rel)
	}

	for _, c := range chunks {
		c.ChunkTotal = len(chunks)
	}
	return chunks
}

func chunkWeight(c *model.MapChunk) int {
	w := 0
	for _, m := range c.Modules {
		w += m.Weight()
	}
	for _, d := range c.Documents {
		w += d.Weight()
	}
	return w
}

// relLess orders relationships deterministically by kind priority, then
// source, target, and evidence text.
func relLess(a, b model.Relationship) bool {
	if pa, pb := kindPriority(a.Kind), kindPriority(b.Kind); pa != pb {
		return pa < pb
	}
	if a.Source.FQN != b.Source.FQN {
		return a.Source.FQN < b.Source.FQN
	}
	if a.Target.FQN != b.Target.FQN {
		return a.Target.FQN < b.Target.FQN
	}
	return a.Evidence.Text < b.Evidence.Text
}

func kindPriority(k model.RelationshipKind) int {
	switch k {
	case model.RelImport:
		return 0
	case model.RelInheritance:
		return 1
	case model.RelCall:
		return 2
	case model.RelAttributeAccess:
		return 3
	case model.RelDocReference:
		return 4
	default:
		return 5
	}
}

// Marshal serializes a map or chunk with stable formatting: two-space
// indentation and (per encoding/json) sorted map keys, so unchanged inputs
// produce byte-identical output apart from timestamp and run ID.
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, &SerializationError{Reason: err.Error()}
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a serialized ProjectMap.
func Unmarshal(data []byte) (*model.ProjectMap, error) {
	var pm model.ProjectMap
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return &pm, nil
}
