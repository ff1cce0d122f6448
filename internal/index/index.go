// Package index provides the SQLite hybrid search index: files, chunks with
// embeddings, an FTS5 text index over chunk text, and a persistent
// embedding cache.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/zuckermanai/zuckerman-sub001/internal/chunker"
	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
)

// InitError reports that the index database could not be opened or migrated.
// Callers treat it as "hybrid search unavailable".
type InitError struct {
	Path string
	Err  error
}

func (e *InitError) Error() string { return fmt.Sprintf("init index %s: %v", e.Path, e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// Options configures an Index.
type Options struct {
	// Embedder produces chunk and query vectors. Nil means text-only.
	Embedder embedding.Embedder
	// Provider names the embedding provider for the fingerprint.
	Provider string
	Chunking chunker.Options
	// Cache wraps Embedder in an LRU backed by the embedding_cache table.
	Cache           bool
	CacheMaxEntries int
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// Fingerprint identifies the settings that produced the stored chunks.
// A change means every file must be re-chunked and re-embedded.
type Fingerprint struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Tokens   int    `json:"tokens"`
	Overlap  int    `json:"overlap"`
}

// Index is the hybrid search index. Queries run concurrently with writes;
// writes serialize on writeMu.
type Index struct {
	db       *sql.DB
	path     string
	embedder embedding.Embedder
	chunking chunker.Options
	fp       Fingerprint
	maxCache int
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	writeMu sync.Mutex
	dims    int
}

// Open opens or creates the index database at path. Failures are *InitError.
func Open(path string, opts Options) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &InitError{Path: path, Err: fmt.Errorf("create db dir: %w", err)}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &InitError{Path: path, Err: fmt.Errorf("open db: %w", err)}
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	idx := &Index{
		db:       db,
		path:     path,
		chunking: opts.Chunking.Resolve(),
		maxCache: opts.CacheMaxEntries,
		log:      opts.Logger.Named("index"),
		metrics:  opts.Metrics,
		now:      time.Now,
	}
	if idx.maxCache <= 0 {
		idx.maxCache = embedding.DefaultCacheEntries
	}
	idx.fp = Fingerprint{Provider: opts.Provider, Tokens: idx.chunking.Tokens, Overlap: idx.chunking.Overlap}

	if opts.Embedder != nil {
		idx.fp.Model = opts.Embedder.Model()
		idx.embedder = opts.Embedder
		if opts.Cache {
			cached, err := embedding.NewCachedEmbedder(opts.Embedder, opts.CacheMaxEntries, idx, idx.metrics, idx.log)
			if err != nil {
				db.Close()
				return nil, &InitError{Path: path, Err: err}
			}
			idx.embedder = cached
		}
	}

	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, &InitError{Path: path, Err: fmt.Errorf("migrate: %w", err)}
	}
	if err := idx.checkFingerprint(context.Background()); err != nil {
		db.Close()
		return nil, &InitError{Path: path, Err: err}
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id              TEXT PRIMARY KEY,
		path            TEXT NOT NULL UNIQUE,
		source          TEXT NOT NULL,
		hash            TEXT NOT NULL,
		mtime           INTEGER NOT NULL,
		size            INTEGER NOT NULL DEFAULT 0,
		messages        INTEGER NOT NULL DEFAULT 0,
		last_indexed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_source ON files(source);

	CREATE TABLE IF NOT EXISTS chunks (
		id           TEXT PRIMARY KEY,
		file_id      TEXT NOT NULL REFERENCES files(id),
		ordinal      INTEGER NOT NULL,
		text         TEXT NOT NULL,
		token_count  INTEGER NOT NULL,
		offset_start INTEGER NOT NULL,
		offset_end   INTEGER NOT NULL,
		start_line   INTEGER NOT NULL,
		end_line     INTEGER NOT NULL,
		model        TEXT,
		dims         INTEGER NOT NULL DEFAULT 0,
		embedding    BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id, ordinal);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content=chunks,
		content_rowid=rowid
	);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		key          TEXT PRIMARY KEY,
		model        TEXT NOT NULL,
		dims         INTEGER NOT NULL,
		vector       BLOB NOT NULL,
		last_used_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embedding_cache_used ON embedding_cache(last_used_at);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers keep chunks_fts in step with chunks
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
	}
	for _, t := range triggers {
		if _, err := idx.db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}
	return nil
}

// checkFingerprint resets files and chunks when the stored fingerprint
// differs from the current one.
func (idx *Index) checkFingerprint(ctx context.Context) error {
	want, err := json.Marshal(idx.fp)
	if err != nil {
		return err
	}
	stored, err := idx.getMeta(ctx, "fingerprint")
	if err != nil {
		return err
	}
	if stored != "" && stored != string(want) {
		idx.log.Info("index settings changed, resetting", zap.String("was", stored), zap.String("now", string(want)))
		if err := idx.Reset(ctx); err != nil {
			return err
		}
	}
	if err := idx.setMeta(ctx, "fingerprint", string(want)); err != nil {
		return err
	}

	dims, err := idx.getMeta(ctx, "dims")
	if err != nil {
		return err
	}
	if dims != "" {
		idx.dims, _ = strconv.Atoi(dims)
	}
	return nil
}

// Reset deletes every file and chunk record. The embedding cache is kept;
// it is keyed by model.
func (idx *Index) Reset(ctx context.Context) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM chunks`,
		`DELETE FROM files`,
		`DELETE FROM meta WHERE key = 'dims'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	idx.dims = 0
	return nil
}

func (idx *Index) getMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := idx.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (idx *Index) setMeta(ctx context.Context, key, value string) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// Fingerprint returns the settings the index was opened with.
func (idx *Index) Fingerprint() Fingerprint { return idx.fp }

// Path returns the database file path.
func (idx *Index) Path() string { return idx.path }

// Embedder returns the (possibly cached) embedder, or nil in text-only mode.
func (idx *Index) Embedder() embedding.Embedder { return idx.embedder }

// Close closes the database.
func (idx *Index) Close() error {
	return idx.db.Close()
}
