package contract

import (
	"context"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/repository/specification"

	"github.com/google/uuid"
)

// ScoredChunkHit is a raw search hit before hydration
type ScoredChunkHit struct {
	ChunkId    uuid.UUID
	DocumentId uuid.UUID
	Score      float64
}

// StoredChunkRef identifies an existing chunk row by its content hash, with the document
// metadata it was stored under
type StoredChunkRef struct {
	Id          uuid.UUID
	Position    int
	Metadata    entity.ChunkMetadata
	PublishedAt time.Time
}

type ChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.Chunk) error
	// UpdateKept rewrites position, search terms and document metadata of a row whose content is unchanged.
	UpdateKept(ctx context.Context, id uuid.UUID, chunk *entity.Chunk) error
	DeleteByIds(ctx context.Context, ids []uuid.UUID) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
	FindHashesByDocumentId(ctx context.Context, documentId uuid.UUID) (map[string]StoredChunkRef, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Chunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// LockDocument takes a transaction-scoped advisory lock; callers must be inside a transaction.
	LockDocument(ctx context.Context, documentId uuid.UUID) error
	// VectorSearch returns up to k hits by cosine similarity (1 - cosine distance), best first.
	VectorSearch(ctx context.Context, embedding []float32, k int, efSearch int) ([]ScoredChunkHit, error)
	// KeywordSearch ranks chunks matching any of the terms with ts_rank_cd, best first.
	KeywordSearch(ctx context.Context, terms []string, k int) ([]ScoredChunkHit, error)
}
