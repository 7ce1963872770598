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

// LearnCoreItem inserts or merges a core memory item. The name is
// normalized and looked up within the category: an existing item is
// updated in place, never duplicated. This is the dedup guarantee that
// keeps the same principle from being loaded twice.
func (s *SQLiteStore) LearnCoreItem(ctx context.Context, p LearnParams) (*model.CoreItem, error) {
	if !model.ValidCategories[p.Category] {
		return nil, fmt.Errorf("learn: invalid category %q", p.Category)
	}
	norm := model.NormalizeName(p.Name)
	if norm == "" {
		return nil, fmt.Errorf("learn: empty name")
	}

	rulesJSON, err := json.Marshal(p.Rules)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	defer tx.Rollback()

	var existingID, createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM core_memory WHERE category = ? AND norm_name = ?`,
		string(p.Category), norm).Scan(&existingID, &createdAt)

	item := &model.CoreItem{
		Category:    p.Category,
		Name:        p.Name,
		Description: p.Description,
		Rules:       p.Rules,
		Priority:    p.Priority,
		UpdatedAt:   now,
	}

	switch {
	case err == nil:
		// Merge: update in place, keep id and created_at.
		_, err = tx.ExecContext(ctx,
			`UPDATE core_memory SET name = ?, description = ?, rules = ?, priority = ?, updated_at = ?
			 WHERE id = ?`,
			p.Name, p.Description, string(rulesJSON), p.Priority,
			now.Format(time.RFC3339Nano), existingID)
		if err != nil {
			return nil, fmt.Errorf("update core item: %w", err)
		}
		item.ID = existingID
		item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		s.log.Debug("core item merged", zap.String("id", existingID), zap.String("name", norm))

	case errors.Is(err, sql.ErrNoRows):
		item.ID = s.newID()
		item.CreatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO core_memory (id, category, name, norm_name, description, rules, priority, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, string(p.Category), p.Name, norm, p.Description,
			string(rulesJSON), p.Priority,
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("insert core item: %w", err)
		}

	default:
		return nil, fmt.Errorf("lookup core item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("learn commit: %w", err)
	}
	return item, nil
}

// ActiveCoreItems returns the working set ordered by priority
// descending (name ascending as tie-break). Loading re-deduplicates
// defensively: if externally corrupted state holds several rows for the
// same (category, normalized name), only the most recently updated one
// survives, and the duplicates are logged.
func (s *SQLiteStore) ActiveCoreItems(ctx context.Context) ([]model.CoreItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, name, description, rules, priority, created_at, updated_at
		 FROM core_memory ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var items []model.CoreItem
	for rows.Next() {
		var it model.CoreItem
		var category, rulesJSON, createdAt, updatedAt string
		if err := rows.Scan(&it.ID, &category, &it.Name, &it.Description,
			&rulesJSON, &it.Priority, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		it.Category = model.Category(category)
		it.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		it.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		if err := json.Unmarshal([]byte(rulesJSON), &it.Rules); err != nil {
			s.log.Warn("skipping core item with bad rules", zap.String("id", it.ID), zap.Error(err))
			continue
		}

		dedupKey := category + "\x00" + model.NormalizeName(it.Name)
		if seen[dedupKey] {
			s.log.Warn("dropping duplicate core item",
				zap.String("id", it.ID), zap.String("name", it.Name))
			continue
		}
		seen[dedupKey] = true
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}
