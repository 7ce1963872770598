package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/model"
)

// EpisodeID derives the globally unique episode id from turn content
// and session end time. The result is a valid ULID whose time component
// is the end time and whose entropy is a content digest, so identical
// (content, end time) pairs always map to the same id.
func EpisodeID(turns []model.Turn, endedAt time.Time) string {
	h := sha256.New()
	for _, t := range turns {
		io.WriteString(h, string(t.Speaker))
		h.Write([]byte{0})
		io.WriteString(h, t.Text)
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)

	var id ulid.ULID
	id.SetTime(ulid.Timestamp(endedAt.UTC()))
	id.SetEntropy(sum[:10])
	return id.String()
}

// FinalizeEpisode persists a finished session atomically. The episode
// and all its turns commit in one transaction; a crash mid-write leaves
// nothing behind. Finalize is the single point of truth for session
// completion: until it returns, no part of the session is visible.
func (s *SQLiteStore) FinalizeEpisode(ctx context.Context, turns []model.Turn, meta model.SessionMeta) (*model.Episode, error) {
	if len(turns) == 0 {
		return nil, ErrEmptyEpisode
	}
	for _, t := range turns {
		if !model.ValidSpeakers[t.Speaker] {
			return nil, fmt.Errorf("finalize: invalid speaker %q", t.Speaker)
		}
	}

	if meta.EndedAt.IsZero() {
		meta.EndedAt = time.Now().UTC()
	}
	meta.TurnCount = len(turns)

	now := time.Now().UTC()
	id := EpisodeID(turns, meta.EndedAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent: same content finalized at the same end time already exists.
	if ep, err := s.loadEpisode(ctx, id, false); err == nil {
		return ep, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO episodes (id, started_at, ended_at, turn_count, created_at, access_count)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		id, meta.StartedAt.UTC().Format(time.RFC3339Nano),
		meta.EndedAt.UTC().Format(time.RFC3339Nano), meta.TurnCount,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}

	for i, t := range turns {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO turns (episode_id, seq, speaker, text, at) VALUES (?, ?, ?, ?, ?)`,
			id, i, string(t.Speaker), t.Text, t.At.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("insert turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("finalize commit: %w", err)
	}

	s.log.Debug("episode finalized",
		zap.String("id", id), zap.Int("turns", meta.TurnCount))

	return &model.Episode{ID: id, Turns: turns, Meta: meta, CreatedAt: now}, nil
}

// LoadEpisode retrieves a finalized episode with its turns and records
// the access.
func (s *SQLiteStore) LoadEpisode(ctx context.Context, id string) (*model.Episode, error) {
	ep, err := s.loadEpisode(ctx, id, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	s.db.ExecContext(ctx,
		`UPDATE episodes SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		now, id)

	return ep, nil
}

func (s *SQLiteStore) loadEpisode(ctx context.Context, id string, withTurns bool) (*model.Episode, error) {
	var ep model.Episode
	var startedAt, endedAt, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, turn_count, created_at FROM episodes WHERE id = ?`, id).
		Scan(&ep.ID, &startedAt, &endedAt, &ep.Meta.TurnCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load episode: %w", err)
	}

	ep.Meta.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	ep.Meta.EndedAt, _ = time.Parse(time.RFC3339Nano, endedAt)
	ep.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if !withTurns {
		return &ep, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker, text, at FROM turns WHERE episode_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Turn
		var speaker, at string
		if err := rows.Scan(&speaker, &t.Text, &at); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Speaker = model.Speaker(speaker)
		t.At, _ = time.Parse(time.RFC3339Nano, at)
		ep.Turns = append(ep.Turns, t)
	}

	return &ep, rows.Err()
}

// ListEpisodes returns episode records without turns, newest first.
func (s *SQLiteStore) ListEpisodes(ctx context.Context, f EpisodeFilter) ([]model.Episode, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, turn_count, created_at
		 FROM episodes ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []model.Episode
	for rows.Next() {
		var ep model.Episode
		var startedAt, endedAt, createdAt string
		if err := rows.Scan(&ep.ID, &startedAt, &endedAt, &ep.Meta.TurnCount, &createdAt); err != nil {
			return nil, err
		}
		ep.Meta.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		ep.Meta.EndedAt, _ = time.Parse(time.RFC3339Nano, endedAt)
		ep.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// EvictEpisodes enforces the retention cap. When the episode count
// exceeds maxEpisodes, the lowest composite-rank episodes among the
// oldest overflow are removed along with their turns and index rows.
// Unindexed episodes are never evicted; their entry may still be in
// flight.
func (s *SQLiteStore) EvictEpisodes(ctx context.Context, maxEpisodes int) ([]string, error) {
	if maxEpisodes <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&total); err != nil {
		return nil, err
	}
	overflow := total - maxEpisodes
	if overflow <= 0 {
		return nil, nil
	}

	// Candidates: oldest indexed episodes first, lower composite rank
	// breaking ties among equally old records.
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id FROM episodes e
		 INNER JOIN index_entries i ON i.episode_id = e.id
		 ORDER BY e.created_at ASC, i.composite_rank ASC, e.id
		 LIMIT ?`, overflow)
	if err != nil {
		return nil, err
	}
	var victims []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		victims = append(victims, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, id := range victims {
		for _, q := range []string{
			`DELETE FROM invoke_keys WHERE episode_id = ?`,
			`DELETE FROM index_entries WHERE episode_id = ?`,
			`DELETE FROM turns WHERE episode_id = ?`,
			`DELETE FROM episodes WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return nil, fmt.Errorf("evict %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if len(victims) > 0 {
		s.log.Info("evicted episodes", zap.Int("count", len(victims)))
	}
	return victims, nil
}
