package codeatlas

import (
	"github.com/jward/codeatlas/internal/mapgen"
	"github.com/jward/codeatlas/internal/model"
)

// Public aliases for the internal model types used in the Pipeline API.

type DiscoveredFile = model.DiscoveredFile
type FileCategory = model.FileCategory
type Module = model.Module
type Class = model.Class
type Function = model.Function
type Variable = model.Variable
type Document = model.Document
type Section = model.Section
type Mention = model.Mention
type Relationship = model.Relationship
type RelationshipKind = model.RelationshipKind
type ElementRef = model.ElementRef
type Evidence = model.Evidence
type FileError = model.FileError
type ProjectMap = model.ProjectMap
type MapChunk = model.MapChunk

// SchemaVersion is the current output schema version.
const SchemaVersion = mapgen.SchemaVersion

// Marshal serializes a ProjectMap or MapChunk with stable formatting.
func Marshal(v any) ([]byte, error) { return mapgen.Marshal(v) }

// Unmarshal decodes a serialized ProjectMap.
func Unmarshal(data []byte) (*ProjectMap, error) { return mapgen.Unmarshal(data) }
