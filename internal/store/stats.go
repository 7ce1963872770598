package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string         `json:"db_path"`
	DBSizeBytes   int64          `json:"db_size_bytes"`
	Episodes      int            `json:"episodes"`
	IndexedCount  int            `json:"indexed"`
	Turns         int            `json:"turns"`
	CoreItems     int            `json:"core_items"`
	TopInvokeKeys []InvokeKeyUse `json:"top_invoke_keys,omitempty"`
}

// InvokeKeyUse counts how many episodes a key retrieves.
type InvokeKeyUse struct {
	Key      string `json:"key"`
	Episodes int    `json:"episodes"`
}

// Stats returns counts across all three collections.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&st.Episodes)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_entries`).Scan(&st.IndexedCount)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&st.Turns)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM core_memory`).Scan(&st.CoreItems)

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, COUNT(*) as cnt FROM invoke_keys
		GROUP BY key ORDER BY cnt DESC, key LIMIT 10`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var u InvokeKeyUse
		rows.Scan(&u.Key, &u.Episodes)
		st.TopInvokeKeys = append(st.TopInvokeKeys, u)
	}

	return st, nil
}
