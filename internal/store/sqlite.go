package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. All mutating operations
// are serialized through mu (single-writer discipline); SQLite
// transactions make each commit all-or-nothing, so readers observe
// either the pre- or post-write snapshot.
type SQLiteStore struct {
	db      *sql.DB
	log     *zap.Logger
	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		log:     log,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		id           TEXT PRIMARY KEY,
		started_at   TEXT NOT NULL,
		ended_at     TEXT NOT NULL,
		turn_count   INTEGER NOT NULL,
		created_at   TEXT NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at DESC);

	CREATE TABLE IF NOT EXISTS turns (
		episode_id TEXT NOT NULL REFERENCES episodes(id),
		seq        INTEGER NOT NULL,
		speaker    TEXT NOT NULL,
		text       TEXT NOT NULL,
		at         TEXT NOT NULL,
		PRIMARY KEY (episode_id, seq)
	);

	CREATE TABLE IF NOT EXISTS index_entries (
		episode_id             TEXT PRIMARY KEY REFERENCES episodes(id),
		title                  TEXT NOT NULL,
		summary                TEXT NOT NULL,
		invoke_keys            TEXT NOT NULL,
		quality_level          INTEGER NOT NULL,
		learning_value         REAL NOT NULL,
		complexity_score       REAL NOT NULL,
		emotional_significance REAL NOT NULL,
		composite_rank         REAL NOT NULL,
		indexed_at             TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS invoke_keys (
		key        TEXT NOT NULL,
		episode_id TEXT NOT NULL REFERENCES index_entries(episode_id),
		PRIMARY KEY (key, episode_id)
	);
	CREATE INDEX IF NOT EXISTS idx_invoke_keys_key ON invoke_keys(key);

	CREATE TABLE IF NOT EXISTS core_memory (
		id          TEXT PRIMARY KEY,
		category    TEXT NOT NULL,
		name        TEXT NOT NULL,
		norm_name   TEXT NOT NULL,
		description TEXT NOT NULL,
		rules       TEXT NOT NULL,
		priority    INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		UNIQUE (category, norm_name)
	);
	CREATE INDEX IF NOT EXISTS idx_core_priority ON core_memory(priority DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}
