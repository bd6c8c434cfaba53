package mapgen

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codeatlas/internal/model"
)

func fixedGenerator(opts ...Option) *Generator {
	base := []Option{
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
		WithRunIDSource(func() string { return "run-0001" }),
	}
	return NewGenerator(append(base, opts...)...)
}

func moduleWithFunctions(name, file string, fnCount int) *model.Module {
	m := &model.Module{
		Name:      name,
		File:      file,
		Classes:   make(map[string]*model.Class),
		Functions: make(map[string]*model.Function),
		Variables: make(map[string]*model.Variable),
	}
	for i := 0; i < fnCount; i++ {
		fnName := fmt.Sprintf("fn%02d", i)
		m.Functions[fnName] = &model.Function{Name: fnName}
	}
	return m
}

func TestGenerate_StampsAndSorts(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()

	b := moduleWithFunctions("b", "b.py", 1)
	a := moduleWithFunctions("a", "a.py", 1)
	docs := []*model.Document{{File: "z.md"}, {File: "m.md"}}
	rels := []model.Relationship{
		{
			Source: model.ElementRef{Kind: model.ElemDocument, FQN: "z.md", File: "z.md"},
			Target: model.ElementRef{Kind: model.ElemModule, FQN: "a", File: "a.py"},
			Kind:   model.RelDocReference,
		},
		{
			Source: model.ElementRef{Kind: model.ElemFunction, FQN: "b.fn00", File: "b.py"},
			Target: model.ElementRef{Kind: model.ElemFunction, FQN: "a.fn00", File: "a.py"},
			Kind:   model.RelCall,
		},
	}

	pm, chunks, err := g.Generate([]*model.Module{b, a}, docs, rels, nil)
	require.NoError(t, err)
	assert.Nil(t, chunks)

	assert.Equal(t, SchemaVersion, pm.SchemaVersion)
	assert.Equal(t, "run-0001", pm.RunID)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), pm.GeneratedAt)

	assert.Equal(t, "a.py", pm.Modules[0].File)
	assert.Equal(t, "b.py", pm.Modules[1].File)
	assert.Equal(t, "m.md", pm.Documents[0].File)

	// Call edges order before doc-reference edges.
	assert.Equal(t, model.RelCall, pm.Relationships[0].Kind)
	assert.Equal(t, model.RelDocReference, pm.Relationships[1].Kind)
}

func TestGenerate_DanglingEdgeIsFatal(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()
	m := moduleWithFunctions("a", "a.py", 1)
	rels := []model.Relationship{{
		Source: model.ElementRef{Kind: model.ElemFunction, FQN: "a.fn00", File: "a.py"},
		Target: model.ElementRef{Kind: model.ElemFunction, FQN: "ghost.fn", File: "ghost.py"},
		Kind:   model.RelCall,
	}}

	_, _, err := g.Generate([]*model.Module{m}, nil, rels, nil)
	require.Error(t, err)
	var se *SerializationError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Reason, "ghost.fn")
}

func TestGenerate_RootModuleElementsAreKnown(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()

	// A package __init__.py at the tree root owns the empty module name,
	// so its elements' FQNs have no module prefix.
	root := &model.Module{
		Name:      "",
		File:      "__init__.py",
		Functions: map[string]*model.Function{"helper": {Name: "helper"}},
		Classes:   map[string]*model.Class{"App": {Name: "App", Methods: map[string]*model.Function{"run": {Name: "run"}}}},
		Variables: map[string]*model.Variable{"VERSION": {Name: "VERSION"}},
	}
	main := moduleWithFunctions("main", "main.py", 1)
	rels := []model.Relationship{
		{
			Source: model.ElementRef{Kind: model.ElemFunction, FQN: "main.fn00", File: "main.py"},
			Target: model.ElementRef{Kind: model.ElemFunction, FQN: "helper", File: "__init__.py"},
			Kind:   model.RelCall,
		},
		{
			Source: model.ElementRef{Kind: model.ElemFunction, FQN: "main.fn00", File: "main.py"},
			Target: model.ElementRef{Kind: model.ElemFunction, FQN: "App.run", File: "__init__.py"},
			Kind:   model.RelCall,
		},
		{
			Source: model.ElementRef{Kind: model.ElemFunction, FQN: "main.fn00", File: "main.py"},
			Target: model.ElementRef{Kind: model.ElemVariable, FQN: "VERSION", File: "__init__.py"},
			Kind:   model.RelAttributeAccess,
		},
	}

	pm, _, err := g.Generate([]*model.Module{root, main}, nil, rels, nil)
	require.NoError(t, err)
	assert.Len(t, pm.Relationships, 3)
}

func TestGenerate_NoChunkingUnderThreshold(t *testing.T) {
	t.Parallel()
	g := fixedGenerator(WithChunkThreshold(100))
	m := moduleWithFunctions("a", "a.py", 3)

	pm, chunks, err := g.Generate([]*model.Module{m}, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, chunks)
	assert.Empty(t, pm.ChunkIndex)
}

func TestGenerate_ChunksAreModuleAtomic(t *testing.T) {
	t.Parallel()
	// Each module weighs 1 + 4 functions = 5; threshold 8 forces one
	// module per chunk without ever splitting a module.
	g := fixedGenerator(WithChunkThreshold(8))
	mods := []*model.Module{
		moduleWithFunctions("a", "a.py", 4),
		moduleWithFunctions("b", "b.py", 4),
		moduleWithFunctions("c", "c.py", 4),
	}

	pm, chunks, err := g.Generate(mods, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Len(t, pm.ChunkIndex, 3)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, 3, c.ChunkTotal)
		assert.Equal(t, pm.RunID, c.RunID)
		assert.Equal(t, pm.SchemaVersion, c.SchemaVersion)
		require.Len(t, c.Modules, 1)
		assert.Equal(t, 5, pm.ChunkIndex[i].Elements)
	}
	assert.Equal(t, "a.py", chunks[0].Modules[0].File)
	assert.Equal(t, "c.py", chunks[2].Modules[0].File)
}

func TestGenerate_RelationshipsFollowSourceChunk(t *testing.T) {
	t.Parallel()
	g := fixedGenerator(WithChunkThreshold(8))
	mods := []*model.Module{
		moduleWithFunctions("a", "a.py", 4),
		moduleWithFunctions("b", "b.py", 4),
	}
	rels := []model.Relationship{{
		Source: model.ElementRef{Kind: model.ElemFunction, FQN: "b.fn00", File: "b.py"},
		Target: model.ElementRef{Kind: model.ElemFunction, FQN: "a.fn01", File: "a.py"},
		Kind:   model.RelCall,
	}}

	_, chunks, err := g.Generate(mods, nil, rels, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Empty(t, chunks[0].Relationships)
	require.Len(t, chunks[1].Relationships, 1)
	assert.Equal(t, "b.fn00", chunks[1].Relationships[0].Source.FQN)
}

func TestGenerate_DocumentsPackAfterModules(t *testing.T) {
	t.Parallel()
	g := fixedGenerator(WithChunkThreshold(4))
	mods := []*model.Module{moduleWithFunctions("a", "a.py", 3)}
	docs := []*model.Document{{File: "guide.md", Sections: []model.Section{{Heading: "x"}, {Heading: "y"}}}}

	_, chunks, err := g.Generate(mods, docs, nil, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Modules, 1)
	assert.Empty(t, chunks[0].Documents)
	assert.Len(t, chunks[1].Documents, 1)
}

func TestMarshal_StableAndRoundTrips(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()
	m := moduleWithFunctions("pkg.mod", "pkg/mod.py", 2)
	m.Variables["LIMIT"] = &model.Variable{Name: "LIMIT", IsConstant: true, Value: "10"}

	pm, _, err := g.Generate([]*model.Module{m}, nil, nil, nil)
	require.NoError(t, err)

	first, err := Marshal(pm)
	require.NoError(t, err)
	second, err := Marshal(pm)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, byte('\n'), first[len(first)-1])

	decoded, err := Unmarshal(first)
	require.NoError(t, err)
	assert.Equal(t, pm.RunID, decoded.RunID)
	assert.Equal(t, pm.SchemaVersion, decoded.SchemaVersion)
	require.Len(t, decoded.Modules, 1)
	assert.Equal(t, "pkg.mod", decoded.Modules[0].Name)
	require.Contains(t, decoded.Modules[0].Variables, "LIMIT")
}

func TestGenerate_IdempotentModuloStamps(t *testing.T) {
	t.Parallel()
	mods := []*model.Module{
		moduleWithFunctions("b", "b.py", 2),
		moduleWithFunctions("a", "a.py", 1),
	}

	g1 := fixedGenerator()
	g2 := fixedGenerator()
	pm1, _, err := g1.Generate(mods, nil, nil, nil)
	require.NoError(t, err)
	pm2, _, err := g2.Generate(mods, nil, nil, nil)
	require.NoError(t, err)

	b1, err := Marshal(pm1)
	require.NoError(t, err)
	b2, err := Marshal(pm2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := Unmarshal([]byte("{not json"))
	assert.Error(t, err)
}
