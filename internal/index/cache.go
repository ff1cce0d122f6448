package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
)

// GetEmbedding reads a cached vector and marks it used.
func (idx *Index) GetEmbedding(ctx context.Context, key string) (embedding.Vector, bool, error) {
	var blob []byte
	err := idx.db.QueryRowContext(ctx, `SELECT vector FROM embedding_cache WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read embedding cache: %w", err)
	}

	idx.writeMu.Lock()
	_, err = idx.db.ExecContext(ctx, `UPDATE embedding_cache SET last_used_at = ? WHERE key = ?`, idx.now().UnixNano(), key)
	idx.writeMu.Unlock()
	if err != nil {
		return nil, false, fmt.Errorf("touch embedding cache: %w", err)
	}
	return embedding.Decode(blob), true, nil
}

// PutEmbedding stores a vector and prunes the least recently used rows
// beyond the configured bound.
func (idx *Index) PutEmbedding(ctx context.Context, key, model string, v embedding.Vector) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO embedding_cache (key, model, dims, vector, last_used_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET vector = excluded.vector, dims = excluded.dims, last_used_at = excluded.last_used_at`,
		key, model, len(v), embedding.Encode(v), idx.now().UnixNano())
	if err != nil {
		return fmt.Errorf("write embedding cache: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM embedding_cache WHERE key IN (
			SELECT key FROM embedding_cache ORDER BY last_used_at ASC
			LIMIT max(0, (SELECT COUNT(*) FROM embedding_cache) - ?)
		)`, idx.maxCache)
	if err != nil {
		return fmt.Errorf("prune embedding cache: %w", err)
	}
	return tx.Commit()
}
