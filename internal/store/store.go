// Package store persists generated project maps in SQLite. It is the
// storage collaborator behind the pipeline boundary: the pipeline never
// touches it, the CLI does.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/codeatlas/internal/mapgen"
	"github.com/jward/codeatlas/internal/model"
)

// Store is the SQLite data access layer for persisted runs.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  run_id          TEXT PRIMARY KEY,
  schema_version  TEXT NOT NULL,
  generated_at    TIMESTAMP NOT NULL,
  root            TEXT,
  modules         INTEGER NOT NULL,
  documents       INTEGER NOT NULL,
  relationships   INTEGER NOT NULL,
  errors          INTEGER NOT NULL,
  chunk_count     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
  run_id          TEXT NOT NULL REFERENCES runs(run_id),
  chunk_index     INTEGER NOT NULL,
  chunk_total     INTEGER NOT NULL,
  payload         TEXT NOT NULL,
  PRIMARY KEY (run_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_generated ON runs(generated_at);
`

// RunInfo summarizes one persisted run.
type RunInfo struct {
	RunID         string
	SchemaVersion string
	GeneratedAt   time.Time
	Root          string
	Modules       int
	Documents     int
	Relationships int
	Errors        int
	ChunkCount    int
}

// SaveRun persists a generated map and its chunks transactionally. An
// unchunked run stores the whole map as chunk 0 of 1.
func (s *Store) SaveRun(root string, pm *model.ProjectMap, chunks []*model.MapChunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunkCount := len(chunks)
	if chunkCount == 0 {
		chunkCount = 1
	}
	_, err = tx.Exec(
		`INSERT INTO runs (run_id, schema_version, generated_at, root,
		   modules, documents, relationships, errors, chunk_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pm.RunID, pm.SchemaVersion, pm.GeneratedAt, root,
		len(pm.Modules), len(pm.Documents), len(pm.Relationships), len(pm.Errors),
		chunkCount,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(chunks) == 0 {
		payload, err := mapgen.Marshal(pm)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO chunks (run_id, chunk_index, chunk_total, payload) VALUES (?, 0, 1, ?)`,
			pm.RunID, string(payload),
		); err != nil {
			return fmt.Errorf("insert map payload: %w", err)
		}
		return tx.Commit()
	}

	for _, c := range chunks {
		payload, err := mapgen.Marshal(c)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO chunks (run_id, chunk_index, chunk_total, payload) VALUES (?, ?, ?, ?)`,
			pm.RunID, c.ChunkIndex, c.ChunkTotal, string(payload),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns persisted runs, newest first.
func (s *Store) ListRuns() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT run_id, schema_version, generated_at, root,
		        modules, documents, relationships, errors, chunk_count
		 FROM runs ORDER BY generated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.RunID, &r.SchemaVersion, &r.GeneratedAt, &r.Root,
			&r.Modules, &r.Documents, &r.Relationships, &r.Errors, &r.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest persisted run, or nil when none exist.
func (s *Store) LatestRun() (*RunInfo, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ChunkPayloads returns a run's serialized chunks in index order.
func (s *Store) ChunkPayloads(runID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM chunks WHERE run_id = ? ORDER BY chunk_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("chunk payloads: %w", err)
	}
	defer rows.Close()

	var payloads []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		payloads = append(payloads, p)
	}
	return payloads, rows.Err()
}

// DeleteRun removes a run and its chunks.
func (s *Store) DeleteRun(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM chunks WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return tx.Commit()
}

// GetMetadata returns the value for key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return value, nil
}

// SetMetadata upserts a metadata key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}
