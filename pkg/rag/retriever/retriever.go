// FILE: pkg/rag/retriever/retriever.go
// PURPOSE: Hybrid (vector + keyword) retrieval with rank fusion and a deterministic order

package retriever

import (
	"context"
	"sort"
	"strings"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/embedding"
	"oncare-chatbot-be/pkg/lexical"
	"oncare-chatbot-be/pkg/rag/index"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const module = "retriever"

type Config struct {
	TopK                  int
	OverFetch             int
	RRFK                  int
	Mode                  FusionMode
	VectorWeight          float64
	KeywordWeight         float64
	VectorSimilarityFloor float64
}

func DefaultConfig() Config {
	return Config{
		TopK:                  5,
		OverFetch:             3,
		RRFK:                  60,
		Mode:                  FusionRRF,
		VectorWeight:          0.7,
		KeywordWeight:         0.3,
		VectorSimilarityFloor: 0.40,
	}
}

// InconsistencyReporter is told about documents whose search hits no longer hydrate.
type InconsistencyReporter interface {
	ReportInconsistency(ctx context.Context, documentId uuid.UUID)
}

type HybridRetriever struct {
	index    index.Index
	embedder embedding.EmbeddingProvider
	reporter InconsistencyReporter
	cfg      Config
	logger   logger.ILogger
}

func NewHybridRetriever(
	idx index.Index,
	embedder embedding.EmbeddingProvider,
	reporter InconsistencyReporter,
	cfg Config,
	logger logger.ILogger,
) *HybridRetriever {
	defaults := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = defaults.OverFetch
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaults.RRFK
	}
	if cfg.Mode == "" {
		cfg.Mode = defaults.Mode
	}
	if cfg.VectorWeight+cfg.KeywordWeight <= 0 {
		cfg.VectorWeight, cfg.KeywordWeight = defaults.VectorWeight, defaults.KeywordWeight
	}
	return &HybridRetriever{
		index:    idx,
		embedder: embedder,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve returns at most k chunks ordered by fused score. An empty result is not an error.
// If the query cannot be embedded, only keyword search runs.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) (entity.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ErrEmptyQuestion
	}
	if k <= 0 {
		k = r.cfg.TopK
	}
	fetch := k * r.cfg.OverFetch

	vec := r.embedQuery(ctx, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var vectorHits, keywordHits []index.Hit
	g, gctx := errgroup.WithContext(ctx)
	if vec != nil {
		g.Go(func() error {
			hits, err := r.index.VectorSearch(gctx, vec, fetch)
			if err != nil {
				return err
			}
			vectorHits = r.applyFloor(hits)
			return nil
		})
	}
	g.Go(func() error {
		hits, err := r.index.KeywordSearch(gctx, query, fetch)
		if err != nil {
			return err
		}
		keywordHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(vectorHits) == 0 && len(keywordHits) == 0 {
		return entity.RetrievalResult{}, nil
	}

	var fused map[uuid.UUID]*candidate
	if r.cfg.Mode == FusionScore {
		fused = r.fuseScores(vectorHits, keywordHits)
	} else {
		fused = r.fuseRRF(vectorHits, keywordHits)
	}

	result, err := r.hydrate(ctx, fused, lexical.UniqueTerms(query))
	if err != nil {
		return nil, err
	}
	SortResult(result)
	if len(result) > k {
		result = result[:k]
	}

	r.logger.Debug(module, "Retrieval completed", map[string]interface{}{
		"vector_hits":  len(vectorHits),
		"keyword_hits": len(keywordHits),
		"returned":     len(result),
		"top_score":    result.TopScore(),
	})
	return result, nil
}

func (r *HybridRetriever) embedQuery(ctx context.Context, query string) []float32 {
	res, err := r.embedder.Generate(ctx, query, embedding.TaskTypeQuery)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn(module, "Query embedding failed, falling back to keyword search", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	}
	return res.Embedding.Values
}

func (r *HybridRetriever) applyFloor(hits []index.Hit) []index.Hit {
	kept := hits[:0:0]
	for _, hit := range hits {
		if hit.Score >= r.cfg.VectorSimilarityFloor {
			kept = append(kept, hit)
		}
	}
	return kept
}

// hydrate loads chunk bodies. Hits whose chunk is gone are skipped and their document reported.
func (r *HybridRetriever) hydrate(ctx context.Context, fused map[uuid.UUID]*candidate, queryTerms []string) (entity.RetrievalResult, error) {
	ids := make([]uuid.UUID, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}

	chunks, err := r.index.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	reported := make(map[uuid.UUID]bool)
	result := make(entity.RetrievalResult, 0, len(fused))
	for id, c := range fused {
		chunk, ok := chunks[id]
		if !ok {
			if !reported[c.documentId] {
				reported[c.documentId] = true
				r.reportInconsistency(ctx, id, c.documentId)
			}
			continue
		}
		result = append(result, entity.RetrievedChunk{
			Chunk:     chunk,
			Score:     c.score,
			MatchKind: c.matchKind(),
			Coverage:  coverage(queryTerms, chunk),
		})
	}
	return result, nil
}

func (r *HybridRetriever) reportInconsistency(ctx context.Context, chunkId, documentId uuid.UUID) {
	err := apperror.ErrIndexInconsistency.
		WithDetail("chunk_id", chunkId.String()).
		WithDetail("document_id", documentId.String())
	r.logger.Warn(module, "Search hit missing from chunk store, skipping", map[string]interface{}{
		"error": err.Error(),
	})
	if r.reporter != nil && documentId != uuid.Nil {
		r.reporter.ReportInconsistency(ctx, documentId)
	}
}

// coverage is the fraction of queryTerms present among the chunk's search terms.
func coverage(queryTerms []string, chunk *entity.Chunk) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	stored := chunk.SearchTerms
	if stored == "" {
		stored = lexical.Terms(chunk.Text)
	}
	have := make(map[string]bool)
	for _, t := range strings.Fields(stored) {
		have[t] = true
	}
	matched := 0
	for _, t := range queryTerms {
		if have[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// SortResult orders by score descending, then published_at descending, then chunk id ascending.
func SortResult(result entity.RetrievalResult) {
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Chunk.PublishedAt.Equal(b.Chunk.PublishedAt) {
			return a.Chunk.PublishedAt.After(b.Chunk.PublishedAt)
		}
		return a.Chunk.Id.String() < b.Chunk.Id.String()
	})
}
