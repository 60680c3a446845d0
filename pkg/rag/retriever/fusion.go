package retriever

import (
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/rag/index"

	"github.com/google/uuid"
)

// FusionMode selects how vector and keyword rankings are combined
type FusionMode string

const (
	FusionRRF   FusionMode = "rrf"
	FusionScore FusionMode = "score"
)

type candidate struct {
	chunkId    uuid.UUID
	documentId uuid.UUID
	score      float64
	vector     bool
	keyword    bool
}

func (c *candidate) matchKind() entity.MatchKind {
	switch {
	case c.vector && c.keyword:
		return entity.MatchKindBoth
	case c.vector:
		return entity.MatchKindVector
	default:
		return entity.MatchKindKeyword
	}
}

// weightTotal is the best score a chunk can reach: rank 1 (or max score) in both lists.
func (r *HybridRetriever) weightTotal() float64 {
	return r.cfg.VectorWeight + r.cfg.KeywordWeight
}

// fuseRRF scores each chunk with Σ w/(k+rank), normalized so that first place in both lists is 1.
func (r *HybridRetriever) fuseRRF(vectorHits, keywordHits []index.Hit) map[uuid.UUID]*candidate {
	k := float64(r.cfg.RRFK)
	best := r.weightTotal() / (k + 1)
	fused := make(map[uuid.UUID]*candidate, len(vectorHits)+len(keywordHits))

	add := func(hits []index.Hit, weight float64, isVector bool) {
		for i, hit := range hits {
			c := fused[hit.ChunkId]
			if c == nil {
				c = &candidate{chunkId: hit.ChunkId, documentId: hit.DocumentId}
				fused[hit.ChunkId] = c
			}
			if isVector {
				if c.vector {
					continue
				}
				c.vector = true
			} else {
				if c.keyword {
					continue
				}
				c.keyword = true
			}
			c.score += weight / (k + float64(i+1)) / best
		}
	}
	add(vectorHits, r.cfg.VectorWeight, true)
	add(keywordHits, r.cfg.KeywordWeight, false)
	return fused
}

// fuseScores min-max normalizes each list and takes the weighted sum, divided by the weight total.
func (r *HybridRetriever) fuseScores(vectorHits, keywordHits []index.Hit) map[uuid.UUID]*candidate {
	total := r.weightTotal()
	fused := make(map[uuid.UUID]*candidate, len(vectorHits)+len(keywordHits))

	add := func(hits []index.Hit, weight float64, isVector bool) {
		if len(hits) == 0 {
			return
		}
		lo, hi := hits[0].Score, hits[0].Score
		for _, hit := range hits {
			if hit.Score < lo {
				lo = hit.Score
			}
			if hit.Score > hi {
				hi = hit.Score
			}
		}
		for _, hit := range hits {
			c := fused[hit.ChunkId]
			if c == nil {
				c = &candidate{chunkId: hit.ChunkId, documentId: hit.DocumentId}
				fused[hit.ChunkId] = c
			}
			if (isVector && c.vector) || (!isVector && c.keyword) {
				continue
			}
			if isVector {
				c.vector = true
			} else {
				c.keyword = true
			}
			norm := 1.0
			if hi > lo {
				norm = (hit.Score - lo) / (hi - lo)
			}
			c.score += weight * norm / total
		}
	}
	add(vectorHits, r.cfg.VectorWeight, true)
	add(keywordHits, r.cfg.KeywordWeight, false)
	return fused
}
