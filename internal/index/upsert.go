package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zuckermanai/zuckerman-sub001/internal/chunker"
	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
)

// embedConcurrency bounds in-flight embedding calls per file.
const embedConcurrency = 8

// FileRecord is the bookkeeping row for one indexed source file.
type FileRecord struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	Source        string    `json:"source"`
	Hash          string    `json:"hash"`
	MTime         time.Time `json:"mtime"`
	Size          int64     `json:"size"`
	Messages      int       `json:"messages,omitempty"`
	LastIndexedAt time.Time `json:"last_indexed_at"`
}

// Document is content to index under a path. Hash is computed when empty.
type Document struct {
	Path     string
	Source   string
	Text     string
	Hash     string
	MTime    time.Time
	Size     int64
	Messages int
}

// UpsertResult describes what an upsert did.
type UpsertResult struct {
	Path    string `json:"path"`
	Changed bool   `json:"changed"`
	Chunks  int    `json:"chunks"`
	Skipped int    `json:"skipped"` // chunks stored without an embedding
}

// ContentHash returns the hex sha256 of text.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// UpsertFile reads path from disk and indexes it under source.
func (idx *Index) UpsertFile(ctx context.Context, path, source string) (*UpsertResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return idx.UpsertDocument(ctx, Document{
		Path:   path,
		Source: source,
		Text:   string(data),
		MTime:  info.ModTime(),
		Size:   info.Size(),
	})
}

// UpsertDocument indexes doc. When the stored hash matches, only the file
// record's mtime and size are refreshed. Otherwise the old chunks are
// replaced by freshly chunked and embedded ones. A chunk whose embedding
// fails is stored without a vector, so it remains searchable by text.
func (idx *Index) UpsertDocument(ctx context.Context, doc Document) (*UpsertResult, error) {
	if doc.Hash == "" {
		doc.Hash = ContentHash(doc.Text)
	}
	res := &UpsertResult{Path: doc.Path}

	existing, err := idx.File(ctx, doc.Path)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Hash == doc.Hash {
		if !existing.MTime.Equal(doc.MTime) || existing.Size != doc.Size || existing.Messages != doc.Messages {
			idx.writeMu.Lock()
			_, err := idx.db.ExecContext(ctx,
				`UPDATE files SET mtime = ?, size = ?, messages = ? WHERE id = ?`,
				doc.MTime.UnixNano(), doc.Size, doc.Messages, existing.ID)
			idx.writeMu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("touch file record: %w", err)
			}
		}
		return res, nil
	}

	pieces := chunker.Chunk(doc.Text, idx.chunking)
	vectors, skipped := idx.embedChunks(ctx, doc.Path, pieces)
	res.Changed = true
	res.Chunks = len(pieces)
	res.Skipped = skipped

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// the record may have been created since the read above
	var fileID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, doc.Path).Scan(&fileID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		fileID = ulid.Make().String()
	case err != nil:
		return nil, fmt.Errorf("read file record: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
			return nil, fmt.Errorf("delete old chunks: %w", err)
		}
	}
	now := idx.now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO files (id, path, source, hash, mtime, size, messages, last_indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   source = excluded.source, hash = excluded.hash, mtime = excluded.mtime,
		   size = excluded.size, messages = excluded.messages, last_indexed_at = excluded.last_indexed_at`,
		fileID, doc.Path, doc.Source, doc.Hash, doc.MTime.UnixNano(), doc.Size, doc.Messages, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("upsert file record: %w", err)
	}

	model := ""
	if idx.embedder != nil {
		model = idx.embedder.Model()
	}
	for i, c := range pieces {
		var blob []byte
		var chunkModel *string
		dims := 0
		if v := vectors[i]; v != nil {
			blob = embedding.Encode(v)
			chunkModel = &model
			dims = len(v)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, file_id, ordinal, text, token_count, offset_start, offset_end, start_line, end_line, model, dims, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ulid.Make().String(), fileID, i, c.Text, c.TokenCount, c.OffsetStart, c.OffsetEnd, c.StartLine, c.EndLine,
			chunkModel, dims, blob)
		if err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// embedChunks embeds every chunk, bounded by embedConcurrency. Failed or
// dimension-mismatched chunks get a nil vector and are counted as skipped.
func (idx *Index) embedChunks(ctx context.Context, path string, pieces []chunker.ChunkResult) ([]embedding.Vector, int) {
	vectors := make([]embedding.Vector, len(pieces))
	if idx.embedder == nil || len(pieces) == 0 {
		return vectors, 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, c := range pieces {
		g.Go(func() error {
			v, err := idx.embedder.Embed(gctx, c.Text)
			if err != nil {
				idx.log.Warn("skipping chunk embedding",
					zap.String("path", path), zap.Int("ordinal", i), zap.Error(err))
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	_ = g.Wait()

	skipped := 0
	for i, v := range vectors {
		switch {
		case v == nil:
			skipped++
		case !idx.acceptDims(len(v)):
			idx.log.Warn("skipping chunk with unexpected dimension",
				zap.String("path", path), zap.Int("ordinal", i), zap.Int("dims", len(v)))
			vectors[i] = nil
			skipped++
		}
	}
	return vectors, skipped
}

// acceptDims pins the index dimension to the first vector stored and
// rejects vectors of any other length.
func (idx *Index) acceptDims(n int) bool {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if idx.dims == 0 {
		if err := idx.setMeta(context.Background(), "dims", strconv.Itoa(n)); err != nil {
			idx.log.Warn("record index dimension", zap.Error(err))
		}
		idx.dims = n
	}
	return n == idx.dims
}

// RemoveFile deletes the file record and its chunks. Reports whether a
// record existed.
func (idx *Index) RemoveFile(ctx context.Context, path string) (bool, error) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete file record: %w", err)
	}
	return true, tx.Commit()
}

// File returns the record for path, or nil when it is not indexed.
func (idx *Index) File(ctx context.Context, path string) (*FileRecord, error) {
	row := idx.db.QueryRowContext(ctx,
		`SELECT id, path, source, hash, mtime, size, messages, last_indexed_at FROM files WHERE path = ?`, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Files lists file records, optionally restricted to one source.
func (idx *Index) Files(ctx context.Context, source string) ([]FileRecord, error) {
	query := `SELECT id, path, source, hash, mtime, size, messages, last_indexed_at FROM files`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY path`

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (FileRecord, error) {
	var f FileRecord
	var mtime int64
	var indexedAt string
	if err := row.Scan(&f.ID, &f.Path, &f.Source, &f.Hash, &mtime, &f.Size, &f.Messages, &indexedAt); err != nil {
		return f, err
	}
	f.MTime = time.Unix(0, mtime)
	f.LastIndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return f, nil
}
