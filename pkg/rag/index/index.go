// FILE: pkg/rag/index/index.go
// PURPOSE: Storage contract for chunks and their vector / keyword search

package index

import (
	"context"
	"fmt"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/chunker"

	"github.com/google/uuid"
)

// Hit is a search match before hydration. Score is cosine similarity for vector search and
// a text rank for keyword search; the two scales are not comparable.
type Hit struct {
	ChunkId    uuid.UUID
	DocumentId uuid.UUID
	Score      float64
}

// Index is the only component ingestion mutates. Queries use the read methods exclusively.
type Index interface {
	// SaveDocument inserts or refreshes a document by source_url and assigns doc.Id.
	SaveDocument(ctx context.Context, doc *entity.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	MarkIngested(ctx context.Context, id uuid.UUID, chunkCount int, incomplete bool) error
	// ListDocuments returns one page of documents, most recently updated first, and the total
	// number matching filter. RawText is not loaded.
	ListDocuments(ctx context.Context, filter entity.DocumentFilter) ([]*entity.Document, int64, error)

	// ExistingHashes lists the content hashes already stored for a document.
	ExistingHashes(ctx context.Context, documentId uuid.UUID) (map[string]bool, error)
	// Upsert applies chunks as the complete new chunk set of a document. Unchanged hashes keep
	// their row and vector, so only new hashes need an embedding.
	Upsert(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, error)
	// Replace drops every chunk of the document and inserts chunks in one step.
	Replace(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, error)
	// Delete removes a document and its chunks. Readers see either all or none of them.
	Delete(ctx context.Context, documentId uuid.UUID) error

	VectorSearch(ctx context.Context, embedding []float32, k int) ([]Hit, error)
	KeywordSearch(ctx context.Context, text string, k int) ([]Hit, error)
	GetChunks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Chunk, error)

	Ping(ctx context.Context) error
}

// validateChunks checks provenance, hash uniqueness and, for chunks not yet stored, the
// embedding. A new chunk without any embedding means the stored set changed after the caller
// read it; that is ErrMissingEmbedding, not a malformed chunk. It stamps documentId on every chunk.
func validateChunks(documentId uuid.UUID, chunks []*entity.Chunk, dimension int, existing map[string]bool) error {
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if err := chunker.Validate(c); err != nil {
			return err
		}
		if c.ContentHash == "" {
			return apperror.ErrMalformedChunk.WithDetail("position", c.Position).WithDetail("reason", "missing content hash")
		}
		if seen[c.ContentHash] {
			return apperror.ErrMalformedChunk.WithDetail("position", c.Position).WithDetail("reason", "duplicate content hash")
		}
		seen[c.ContentHash] = true
		c.DocumentId = documentId

		if existing[c.ContentHash] {
			continue
		}
		if len(c.Embedding) == 0 {
			return apperror.ErrMissingEmbedding.WithDetail("position", c.Position).WithDetail("content_hash", c.ContentHash)
		}
		if len(c.Embedding) != dimension {
			return apperror.ErrDimensionMismatch.Wrap(
				fmt.Errorf("chunk %d has %d components, want %d", c.Position, len(c.Embedding), dimension),
			)
		}
	}
	return nil
}

// keptUpdate rewrites a stored row from the incoming chunk with the same content hash.
type keptUpdate struct {
	id    uuid.UUID
	chunk *entity.Chunk
}

type storedRef struct {
	id          uuid.UUID
	position    int
	metadata    entity.ChunkMetadata
	publishedAt time.Time
}

// stale reports whether the row was stored under different document metadata than c carries.
func (r storedRef) stale(c *entity.Chunk) bool {
	return r.metadata != c.Metadata || !r.publishedAt.Equal(c.PublishedAt)
}

type diffPlan struct {
	deleted   []uuid.UUID
	updated   []keptUpdate
	inserted  []*entity.Chunk
	moved     int
	unchanged int
	refreshed int
}

func planDiff(stored map[string]storedRef, incoming []*entity.Chunk) diffPlan {
	plan := diffPlan{}
	keep := make(map[string]bool, len(incoming))
	for _, c := range incoming {
		keep[c.ContentHash] = true
		ref, ok := stored[c.ContentHash]
		if !ok {
			plan.inserted = append(plan.inserted, c)
			continue
		}
		moved, stale := ref.position != c.Position, ref.stale(c)
		if moved {
			plan.moved++
		} else {
			plan.unchanged++
		}
		if stale {
			plan.refreshed++
		}
		if moved || stale {
			plan.updated = append(plan.updated, keptUpdate{id: ref.id, chunk: c})
		}
	}
	for hash, ref := range stored {
		if !keep[hash] {
			plan.deleted = append(plan.deleted, ref.id)
		}
	}
	return plan
}

func (p diffPlan) stats(documentId uuid.UUID) *entity.UpsertStats {
	return &entity.UpsertStats{
		DocumentId: documentId,
		Inserted:   len(p.inserted),
		Moved:      p.moved,
		Unchanged:  p.unchanged,
		Deleted:    len(p.deleted),
		Refreshed:  p.refreshed,
	}
}
