package store

import (
	"context"
	"fmt"

	"github.com/mnemo-ai/mnemo/internal/model"
)

// Snapshot is a full JSON-serializable dump of the three collections.
type Snapshot struct {
	Episodes  []model.Episode    `json:"episodes"`
	Index     []model.IndexEntry `json:"index"`
	CoreItems []model.CoreItem   `json:"core_items"`
}

// ExportAll dumps every episode (with turns), index entry, and core item.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	metas, err := s.ListEpisodes(ctx, EpisodeFilter{Limit: 1 << 30})
	if err != nil {
		return nil, fmt.Errorf("export episodes: %w", err)
	}
	for _, m := range metas {
		ep, err := s.loadEpisode(ctx, m.ID, true)
		if err != nil {
			return nil, fmt.Errorf("export episode %s: %w", m.ID, err)
		}
		snap.Episodes = append(snap.Episodes, *ep)
	}

	snap.Index, err = s.AllIndexEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("export index: %w", err)
	}

	snap.CoreItems, err = s.ActiveCoreItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("export core memory: %w", err)
	}

	return snap, nil
}

// Import loads a snapshot. Episodes finalize idempotently (duplicates
// are skipped by id), index entries replace existing ones, and core
// items pass through learn so duplicates merge instead of appending.
func (s *SQLiteStore) Import(ctx context.Context, snap *Snapshot) (int, error) {
	imported := 0

	for i := range snap.Episodes {
		ep := &snap.Episodes[i]
		if _, err := s.FinalizeEpisode(ctx, ep.Turns, ep.Meta); err != nil {
			return imported, fmt.Errorf("import episode %s: %w", ep.ID, err)
		}
		imported++
	}

	for i := range snap.Index {
		if err := s.PutIndexEntry(ctx, &snap.Index[i]); err != nil {
			return imported, fmt.Errorf("import index entry: %w", err)
		}
		imported++
	}

	for _, it := range snap.CoreItems {
		_, err := s.LearnCoreItem(ctx, LearnParams{
			Category:    it.Category,
			Name:        it.Name,
			Description: it.Description,
			Rules:       it.Rules,
			Priority:    it.Priority,
		})
		if err != nil {
			return imported, fmt.Errorf("import core item %q: %w", it.Name, err)
		}
		imported++
	}

	return imported, nil
}
