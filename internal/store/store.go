// Package store provides SQLite-backed persistence for the three memory
// collections: episodes, the semantic index, and core memory.
package store

import (
	"context"
	"errors"

	"github.com/mnemo-ai/mnemo/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyEpisode is returned when finalize is called with no turns.
var ErrEmptyEpisode = errors.New("episode has no turns")

// ErrCorruptEntry marks a malformed index record. Loading skips and
// logs such records instead of failing the whole index.
var ErrCorruptEntry = errors.New("corrupt index entry")

// LearnParams holds parameters for learning a core memory item.
type LearnParams struct {
	Category    model.Category
	Name        string
	Description string
	Rules       []string
	Priority    int
}

// EpisodeFilter narrows episode listings.
type EpisodeFilter struct {
	Limit int
}

// Store is the persistence surface consumed by the engine.
type Store interface {
	// FinalizeEpisode atomically persists a finished session as an
	// immutable episode. On failure nothing is persisted. Finalizing
	// identical content at the same end time is idempotent.
	FinalizeEpisode(ctx context.Context, turns []model.Turn, meta model.SessionMeta) (*model.Episode, error)

	// LoadEpisode retrieves a finalized episode by id.
	LoadEpisode(ctx context.Context, id string) (*model.Episode, error)

	// ListEpisodes returns episode records (without turns), newest first.
	ListEpisodes(ctx context.Context, f EpisodeFilter) ([]model.Episode, error)

	// PutIndexEntry writes or replaces the index entry for an episode
	// together with its inverted invoke-key rows, all-or-nothing.
	PutIndexEntry(ctx context.Context, e *model.IndexEntry) error

	// GetIndexEntry retrieves the index entry for an episode.
	GetIndexEntry(ctx context.Context, episodeID string) (*model.IndexEntry, error)

	// AllIndexEntries returns every readable index entry. Malformed
	// records are skipped and logged, never fatal.
	AllIndexEntries(ctx context.Context) ([]model.IndexEntry, error)

	// InvokeKeyIndex returns the inverted map of invoke key to episode ids.
	InvokeKeyIndex(ctx context.Context) (map[string][]string, error)

	// LearnCoreItem inserts or merges a core memory item. At most one
	// item ever exists per (category, normalized name).
	LearnCoreItem(ctx context.Context, p LearnParams) (*model.CoreItem, error)

	// ActiveCoreItems returns core items ordered by priority descending,
	// deduplicated defensively against corrupted legacy state.
	ActiveCoreItems(ctx context.Context) ([]model.CoreItem, error)

	// EvictEpisodes enforces the retention cap, returning evicted ids.
	EvictEpisodes(ctx context.Context, maxEpisodes int) ([]string, error)

	// Close closes the store.
	Close() error
}
