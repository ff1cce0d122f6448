package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
)

// QueryOptions controls ranking. Zero values fall back to the defaults.
type QueryOptions struct {
	MaxResults int
	MinScore   float64
	Hybrid     config.HybridConfig
	// Sources restricts results to these sources. Empty means all.
	Sources []string
}

// QueryOptionsFrom builds QueryOptions from the query configuration.
func QueryOptionsFrom(q config.QueryConfig) QueryOptions {
	return QueryOptions{MaxResults: q.MaxResults, MinScore: q.MinScore, Hybrid: q.Hybrid}
}

// Result is a ranked chunk.
type Result struct {
	ChunkID     string    `json:"chunk_id"`
	Path        string    `json:"path"`
	Source      string    `json:"source"`
	Ordinal     int       `json:"ordinal"`
	Text        string    `json:"text"`
	StartLine   int       `json:"start_line"`
	EndLine     int       `json:"end_line"`
	MTime       time.Time `json:"mtime"`
	VectorScore float64   `json:"vector_score"`
	TextScore   float64   `json:"text_score"`
	Score       float64   `json:"score"`
}

type candidate struct {
	Result
	rawVector float64
	rawText   float64
	hasVector bool
	hasText   bool
}

// Query ranks indexed chunks against text. Each active leg fetches
// MaxResults*CandidateMultiplier candidates; scores are min-max normalized
// per leg over the candidate set and fused with the configured weights.
// If the query cannot be embedded, hybrid mode continues on the text leg
// alone and vector-only mode returns no results.
func (idx *Index) Query(ctx context.Context, text string, opts QueryOptions) ([]Result, error) {
	start := time.Now()
	defer func() { idx.metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()

	opts = opts.resolve()
	limit := opts.MaxResults * opts.Hybrid.CandidateMultiplier
	vw, tw := opts.Hybrid.VectorWeight, opts.Hybrid.TextWeight
	if !opts.Hybrid.Enabled {
		vw, tw = 1, 0
	}

	var qv embedding.Vector
	if idx.embedder != nil {
		v, err := idx.embedder.Embed(ctx, text)
		if err != nil {
			idx.log.Warn("query embedding failed", zap.Error(err))
		} else {
			qv = v
		}
	}
	if qv == nil {
		if !opts.Hybrid.Enabled {
			return nil, nil
		}
		vw, tw = 0, 1
	}

	cands := map[string]*candidate{}
	var similarity map[string]float64
	if qv != nil {
		var err error
		if similarity, err = idx.vectorCandidates(ctx, qv, limit, opts.Sources, cands); err != nil {
			return nil, err
		}
	}
	if tw > 0 {
		if err := idx.textCandidates(ctx, text, limit, opts.Sources, cands); err != nil {
			return nil, err
		}
	}
	// text-only candidates still carry their vector similarity when known
	for id, c := range cands {
		if s, ok := similarity[id]; ok && !c.hasVector {
			c.rawVector, c.hasVector = s, true
		}
	}

	list := make([]*candidate, 0, len(cands))
	for _, c := range cands {
		list = append(list, c)
	}
	vecRaw := make([]float64, 0, len(list))
	textRaw := make([]float64, 0, len(list))
	for _, c := range list {
		if c.hasVector {
			vecRaw = append(vecRaw, c.rawVector)
		}
		if c.hasText {
			textRaw = append(textRaw, c.rawText)
		}
	}
	vecLo, vecHi := bounds(vecRaw)
	textLo, textHi := bounds(textRaw)

	var results []Result
	for _, c := range list {
		if c.hasVector {
			c.VectorScore = normalize(c.rawVector, vecLo, vecHi)
		}
		if c.hasText {
			c.TextScore = normalize(c.rawText, textLo, textHi)
		}
		c.Score = CombineScore(c.VectorScore, c.TextScore, vw, tw)
		if c.Score < opts.MinScore {
			continue
		}
		results = append(results, c.Result)
	}

	SortResults(results)
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}

func (o QueryOptions) resolve() QueryOptions {
	d := config.Defaults().Query
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		o.MinScore = max(0, min(1, o.MinScore))
	}
	if o.Hybrid.CandidateMultiplier <= 0 {
		o.Hybrid.CandidateMultiplier = d.Hybrid.CandidateMultiplier
	}
	o.Hybrid.VectorWeight, o.Hybrid.TextWeight = config.ResolveWeights(o.Hybrid.VectorWeight, o.Hybrid.TextWeight)
	return o
}

// vectorCandidates scores every embedded chunk, adds the top limit to out
// and returns the similarity of every scored chunk.
func (idx *Index) vectorCandidates(ctx context.Context, qv embedding.Vector, limit int, sources []string, out map[string]*candidate) (map[string]float64, error) {
	where, args := sourceFilter(sources)
	rows, err := idx.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id, c.ordinal, c.text, c.start_line, c.end_line, c.embedding, f.path, f.source, f.mtime
		FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE c.embedding IS NOT NULL AND c.dims = ?%s`, where), append([]any{len(qv)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}
	defer rows.Close()

	var scored []*candidate
	similarity := map[string]float64{}
	for rows.Next() {
		c := &candidate{hasVector: true}
		var blob []byte
		var mtime int64
		if err := rows.Scan(&c.ChunkID, &c.Ordinal, &c.Text, &c.StartLine, &c.EndLine, &blob, &c.Path, &c.Source, &mtime); err != nil {
			return nil, err
		}
		c.MTime = time.Unix(0, mtime)
		c.rawVector = embedding.CosineSimilarity(qv, embedding.Decode(blob))
		similarity[c.ChunkID] = c.rawVector
		scored = append(scored, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].rawVector > scored[j].rawVector })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	for _, c := range scored {
		out[c.ChunkID] = c
	}
	return similarity, nil
}

// textCandidates runs an FTS5 match and keeps the top limit by bm25.
func (idx *Index) textCandidates(ctx context.Context, text string, limit int, sources []string, out map[string]*candidate) error {
	match := ftsQuery(text)
	if match == "" {
		return nil
	}
	where, args := sourceFilter(sources)
	// bm25() is lower-is-better; negate so higher is better
	rows, err := idx.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id, c.ordinal, c.text, c.start_line, c.end_line, f.path, f.source, f.mtime, -bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN files f ON f.id = c.file_id
		WHERE chunks_fts MATCH ?%s
		ORDER BY bm25(chunks_fts)
		LIMIT ?`, where), append(append([]any{match}, args...), limit)...)
	if err != nil {
		return fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Result
		var mtime int64
		var score float64
		if err := rows.Scan(&r.ChunkID, &r.Ordinal, &r.Text, &r.StartLine, &r.EndLine, &r.Path, &r.Source, &mtime, &score); err != nil {
			return err
		}
		r.MTime = time.Unix(0, mtime)
		c, ok := out[r.ChunkID]
		if !ok {
			c = &candidate{Result: r}
			out[r.ChunkID] = c
		}
		c.hasText = true
		c.rawText = score
	}
	return rows.Err()
}

func sourceFilter(sources []string) (string, []any) {
	if len(sources) == 0 {
		return "", nil
	}
	args := make([]any, len(sources))
	for i, s := range sources {
		args[i] = s
	}
	return " AND f.source IN (" + strings.TrimSuffix(strings.Repeat("?,", len(sources)), ",") + ")", args
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms so user
// input never reaches the FTS5 query syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := make([]string, 0, len(words))
	seen := map[string]bool{}
	for _, w := range words {
		w = strings.ToLower(w)
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

// NormalizeScores min-max normalizes scores into [0,1]. When every score is
// equal, each normalizes to 1.
func NormalizeScores(scores []float64) []float64 {
	lo, hi := bounds(scores)
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = normalize(s, lo, hi)
	}
	return out
}

func bounds(scores []float64) (lo, hi float64) {
	for i, s := range scores {
		if i == 0 || s < lo {
			lo = s
		}
		if i == 0 || s > hi {
			hi = s
		}
	}
	return lo, hi
}

func normalize(s, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (s - lo) / (hi - lo)
}

// CombineScore fuses normalized leg scores.
func CombineScore(vectorScore, textScore, vectorWeight, textWeight float64) float64 {
	return vectorWeight*vectorScore + textWeight*textScore
}

// SortResults orders by score descending, then newest file mtime, then
// path, then chunk ordinal.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.MTime.Equal(b.MTime) {
			return a.MTime.After(b.MTime)
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Ordinal < b.Ordinal
	})
}
