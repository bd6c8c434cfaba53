package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codeatlas/internal/mapgen"
	"github.com/jward/codeatlas/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func testMap(runID string, generatedAt time.Time) *model.ProjectMap {
	return &model.ProjectMap{
		SchemaVersion: mapgen.SchemaVersion,
		GeneratedAt:   generatedAt,
		RunID:         runID,
		Modules: []*model.Module{{
			Name: "pkg.mod", File: "pkg/mod.py",
			Classes:   map[string]*model.Class{},
			Functions: map[string]*model.Function{"run": {Name: "run"}},
			Variables: map[string]*model.Variable{},
		}},
		Documents: []*model.Document{{File: "README.md", Title: "Readme"}},
	}
}

func TestMigrate_TablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"runs", "chunks", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestSaveRun_Unchunked(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	pm := testMap("run-a", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.NoError(t, s.SaveRun("/src/app", pm, nil))

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-a", runs[0].RunID)
	assert.Equal(t, "/src/app", runs[0].Root)
	assert.Equal(t, 1, runs[0].Modules)
	assert.Equal(t, 1, runs[0].Documents)
	assert.Equal(t, 1, runs[0].ChunkCount)

	payloads, err := s.ChunkPayloads("run-a")
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	decoded, err := mapgen.Unmarshal([]byte(payloads[0]))
	require.NoError(t, err)
	assert.Equal(t, "run-a", decoded.RunID)
	require.Len(t, decoded.Modules, 1)
	assert.Equal(t, "pkg.mod", decoded.Modules[0].Name)
}

func TestSaveRun_Chunked(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	pm := testMap("run-b", time.Now().UTC())
	chunks := []*model.MapChunk{
		{RunID: "run-b", SchemaVersion: pm.SchemaVersion, ChunkIndex: 0, ChunkTotal: 2, Modules: pm.Modules},
		{RunID: "run-b", SchemaVersion: pm.SchemaVersion, ChunkIndex: 1, ChunkTotal: 2, Documents: pm.Documents},
	}

	require.NoError(t, s.SaveRun("/src/app", pm, chunks))

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].ChunkCount)

	payloads, err := s.ChunkPayloads("run-b")
	require.NoError(t, err)
	assert.Len(t, payloads, 2)
}

func TestSaveRun_DuplicateRunIDFails(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	pm := testMap("run-dup", time.Now().UTC())

	require.NoError(t, s.SaveRun("/a", pm, nil))
	assert.Error(t, s.SaveRun("/a", pm, nil))
}

func TestListRuns_NewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	older := testMap("run-old", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := testMap("run-new", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.SaveRun("/a", older, nil))
	require.NoError(t, s.SaveRun("/a", newer, nil))

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-new", latest.RunID)
}

func TestLatestRun_EmptyStore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	pm := testMap("run-del", time.Now().UTC())
	require.NoError(t, s.SaveRun("/a", pm, nil))

	require.NoError(t, s.DeleteRun("run-del"))

	runs, err := s.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)

	payloads, err := s.ChunkPayloads("run-del")
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("absent")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetMetadata("last_root", "/src/app"))
	v, err = s.GetMetadata("last_root")
	require.NoError(t, err)
	assert.Equal(t, "/src/app", v)

	require.NoError(t, s.SetMetadata("last_root", "/src/other"))
	v, err = s.GetMetadata("last_root")
	require.NoError(t, err)
	assert.Equal(t, "/src/other", v)
}
