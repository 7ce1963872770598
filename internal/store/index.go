package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/model"
)

// PutIndexEntry writes or replaces the semantic index entry for an
// episode. The entry row and its inverted invoke-key rows commit in a
// single transaction, so readers never observe a half-written entry.
// Re-indexing an already-indexed episode replaces the entry in place;
// it never produces a duplicate.
func (s *SQLiteStore) PutIndexEntry(ctx context.Context, e *model.IndexEntry) error {
	if e.EpisodeID == "" {
		return fmt.Errorf("put index entry: empty episode id")
	}
	if e.QualityLevel < 1 || e.QualityLevel > 5 {
		return fmt.Errorf("put index entry: quality level %d out of range", e.QualityLevel)
	}

	keysJSON, err := json.Marshal(e.InvokeKeys)
	if err != nil {
		return fmt.Errorf("marshal invoke keys: %w", err)
	}
	if e.IndexedAt.IsZero() {
		e.IndexedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put index entry: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM invoke_keys WHERE episode_id = ?`, e.EpisodeID); err != nil {
		return fmt.Errorf("clear invoke keys: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO index_entries
		   (episode_id, title, summary, invoke_keys, quality_level,
		    learning_value, complexity_score, emotional_significance,
		    composite_rank, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(episode_id) DO UPDATE SET
		   title=excluded.title, summary=excluded.summary,
		   invoke_keys=excluded.invoke_keys, quality_level=excluded.quality_level,
		   learning_value=excluded.learning_value, complexity_score=excluded.complexity_score,
		   emotional_significance=excluded.emotional_significance,
		   composite_rank=excluded.composite_rank, indexed_at=excluded.indexed_at`,
		e.EpisodeID, e.Title, e.Summary, string(keysJSON), e.QualityLevel,
		e.Learning, e.Complexity, e.Emotional, e.Composite,
		e.IndexedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert index entry: %w", err)
	}

	for _, k := range e.InvokeKeys {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO invoke_keys (key, episode_id) VALUES (?, ?)`,
			k, e.EpisodeID); err != nil {
			return fmt.Errorf("insert invoke key %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index commit: %w", err)
	}
	return nil
}

// GetIndexEntry retrieves the index entry for an episode.
func (s *SQLiteStore) GetIndexEntry(ctx context.Context, episodeID string) (*model.IndexEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT episode_id, title, summary, invoke_keys, quality_level,
		        learning_value, complexity_score, emotional_significance,
		        composite_rank, indexed_at
		 FROM index_entries WHERE episode_id = ?`, episodeID)

	e, err := scanIndexEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index entry %s: %w", episodeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// AllIndexEntries returns every readable index entry, ordered by
// episode id for stable output. A malformed record is skipped and
// logged; one bad row never disables retrieval.
func (s *SQLiteStore) AllIndexEntries(ctx context.Context) ([]model.IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id, title, summary, invoke_keys, quality_level,
		        learning_value, complexity_score, emotional_significance,
		        composite_rank, indexed_at
		 FROM index_entries ORDER BY episode_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.IndexEntry
	for rows.Next() {
		e, err := scanIndexEntry(rows)
		if err != nil {
			if errors.Is(err, ErrCorruptEntry) {
				s.log.Warn("skipping corrupt index entry", zap.Error(err))
				continue
			}
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// InvokeKeyIndex returns the inverted invoke-key map with candidate
// episode ids sorted for deterministic iteration.
func (s *SQLiteStore) InvokeKeyIndex(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, episode_id FROM invoke_keys`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	idx := make(map[string][]string)
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return nil, err
		}
		idx[key] = append(idx[key], id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for k := range idx {
		sort.Strings(idx[k])
	}
	return idx, nil
}

func scanIndexEntry(row scanner) (*model.IndexEntry, error) {
	var e model.IndexEntry
	var keysJSON, indexedAt string

	err := row.Scan(&e.EpisodeID, &e.Title, &e.Summary, &keysJSON,
		&e.QualityLevel, &e.Learning, &e.Complexity, &e.Emotional,
		&e.Composite, &indexedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keysJSON), &e.InvokeKeys); err != nil {
		return nil, fmt.Errorf("episode %s invoke keys: %v: %w", e.EpisodeID, err, ErrCorruptEntry)
	}
	if e.QualityLevel < 1 || e.QualityLevel > 5 {
		return nil, fmt.Errorf("episode %s quality %d: %w", e.EpisodeID, e.QualityLevel, ErrCorruptEntry)
	}
	e.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &e, nil
}
