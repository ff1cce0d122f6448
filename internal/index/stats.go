package index

import (
	"context"
	"os"
)

// Stats holds index statistics.
type Stats struct {
	DBPath         string         `json:"db_path"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
	Files          int            `json:"files"`
	Chunks         int            `json:"chunks"`
	EmbeddedChunks int            `json:"embedded_chunks"`
	CacheEntries   int            `json:"cache_entries"`
	Dims           int            `json:"dims"`
	Fingerprint    Fingerprint    `json:"fingerprint"`
	Sources        map[string]int `json:"sources"`
}

// Stats returns index statistics.
func (idx *Index) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: idx.path, Fingerprint: idx.fp, Sources: map[string]int{}}

	if info, err := os.Stat(idx.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	for _, q := range []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM files`, &st.Files},
		{`SELECT COUNT(*) FROM chunks`, &st.Chunks},
		{`SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`, &st.EmbeddedChunks},
		{`SELECT COUNT(*) FROM embedding_cache`, &st.CacheEntries},
	} {
		if err := idx.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return st, err
		}
	}

	idx.writeMu.Lock()
	st.Dims = idx.dims
	idx.writeMu.Unlock()

	rows, err := idx.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM files GROUP BY source ORDER BY source`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return st, err
		}
		st.Sources[source] = n
	}
	return st, rows.Err()
}
