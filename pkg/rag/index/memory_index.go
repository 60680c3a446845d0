package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/lexical"

	"github.com/google/uuid"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// MemoryIndex keeps everything in process. Vector search is exact cosine and keyword search is
// BM25 over the chunk search terms. Used for local development and tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	documents map[uuid.UUID]*entity.Document
	bySource  map[string]uuid.UUID
	chunks    map[uuid.UUID]*entity.Chunk
	hashes    map[uuid.UUID]map[string]uuid.UUID
}

var _ Index = (*MemoryIndex)(nil)

func NewMemoryIndex(dimension int) *MemoryIndex {
	if dimension <= 0 {
		dimension = entity.EmbeddingDimension
	}
	return &MemoryIndex{
		dimension: dimension,
		documents: make(map[uuid.UUID]*entity.Document),
		bySource:  make(map[string]uuid.UUID),
		chunks:    make(map[uuid.UUID]*entity.Chunk),
		hashes:    make(map[uuid.UUID]map[string]uuid.UUID),
	}
}

func (m *MemoryIndex) SaveDocument(ctx context.Context, doc *entity.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if id, ok := m.bySource[doc.SourceURL]; ok {
		stored := m.documents[id]
		doc.Id = id
		doc.CreatedAt = stored.CreatedAt
		doc.ChunkCount = stored.ChunkCount
		doc.Incomplete = stored.Incomplete
	} else {
		if doc.Id == uuid.Nil {
			doc.Id = uuid.New()
		}
		doc.CreatedAt = now
		m.bySource[doc.SourceURL] = doc.Id
	}
	doc.UpdatedAt = &now

	cp := *doc
	m.documents[doc.Id] = &cp
	return nil
}

func (m *MemoryIndex) GetDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, apperror.ErrDocumentNotFound.WithDetail("document_id", id.String())
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryIndex) ListDocuments(ctx context.Context, filter entity.DocumentFilter) ([]*entity.Document, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*entity.Document
	for _, doc := range m.documents {
		if filter.Category != "" && doc.Category != filter.Category {
			continue
		}
		if filter.IncompleteOnly && !doc.Incomplete {
			continue
		}
		cp := *doc
		cp.RawText = ""
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].UpdatedAt, matched[j].UpdatedAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return matched[i].Id.String() < matched[j].Id.String()
	})

	total := int64(len(matched))
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (m *MemoryIndex) MarkIngested(ctx context.Context, id uuid.UUID, chunkCount int, incomplete bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return apperror.ErrDocumentNotFound.WithDetail("document_id", id.String())
	}
	doc.ChunkCount = chunkCount
	doc.Incomplete = incomplete
	return nil
}

func (m *MemoryIndex) ExistingHashes(ctx context.Context, documentId uuid.UUID) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make(map[string]bool, len(m.hashes[documentId]))
	for hash := range m.hashes[documentId] {
		hashes[hash] = true
	}
	return hashes, nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.hashes[documentId]
	existing := make(map[string]bool, len(stored))
	refs := make(map[string]storedRef, len(stored))
	for hash, id := range stored {
		existing[hash] = true
		c := m.chunks[id]
		refs[hash] = storedRef{id: id, position: c.Position, metadata: c.Metadata, publishedAt: c.PublishedAt}
	}
	if err := validateChunks(documentId, chunks, m.dimension, existing); err != nil {
		return nil, err
	}

	plan := planDiff(refs, chunks)
	for _, id := range plan.deleted {
		m.removeChunk(id)
	}
	for _, u := range plan.updated {
		kept := m.chunks[u.id]
		kept.Position = u.chunk.Position
		kept.SearchTerms = u.chunk.SearchTerms
		kept.Metadata = u.chunk.Metadata
		kept.PublishedAt = u.chunk.PublishedAt
	}
	for _, c := range plan.inserted {
		m.insertChunk(c)
	}
	return plan.stats(documentId), nil
}

func (m *MemoryIndex) Replace(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateChunks(documentId, chunks, m.dimension, nil); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := len(m.hashes[documentId])
	for _, id := range m.hashes[documentId] {
		m.removeChunk(id)
	}
	for _, c := range chunks {
		m.insertChunk(c)
	}
	return &entity.UpsertStats{DocumentId: documentId, Inserted: len(chunks), Deleted: previous}, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, documentId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[documentId]
	if !ok {
		return apperror.ErrDocumentNotFound.WithDetail("document_id", documentId.String())
	}
	for _, id := range m.hashes[documentId] {
		m.removeChunk(id)
	}
	delete(m.hashes, documentId)
	delete(m.bySource, doc.SourceURL)
	delete(m.documents, documentId)
	return nil
}

func (m *MemoryIndex) VectorSearch(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	if len(embedding) != m.dimension {
		return nil, apperror.ErrDimensionMismatch.Wrap(fmt.Errorf("query vector has %d components, want %d", len(embedding), m.dimension))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.chunks))
	for id, c := range m.chunks {
		hits = append(hits, Hit{ChunkId: id, DocumentId: c.DocumentId, Score: cosine(embedding, c.Embedding)})
	}
	return topHits(hits, k), nil
}

func (m *MemoryIndex) KeywordSearch(ctx context.Context, text string, k int) ([]Hit, error) {
	terms := lexical.UniqueTerms(text)
	if len(terms) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := float64(len(m.chunks))
	if n == 0 {
		return nil, nil
	}

	termFreqs := make(map[uuid.UUID]map[string]int, len(m.chunks))
	docFreq := make(map[string]int, len(terms))
	totalLen := 0
	for id, c := range m.chunks {
		tokens := strings.Fields(c.SearchTerms)
		totalLen += len(tokens)
		tf := make(map[string]int)
		for _, tok := range tokens {
			tf[tok]++
		}
		termFreqs[id] = tf
		for _, term := range terms {
			if tf[term] > 0 {
				docFreq[term]++
			}
		}
	}
	avgLen := float64(totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}

	var hits []Hit
	for id, tf := range termFreqs {
		docLen := 0
		for _, count := range tf {
			docLen += count
		}
		score := 0.0
		for _, term := range terms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			df := float64(docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			score += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(docLen)/avgLen))
		}
		if score > 0 {
			hits = append(hits, Hit{ChunkId: id, DocumentId: m.chunks[id].DocumentId, Score: score})
		}
	}
	return topHits(hits, k), nil
}

func (m *MemoryIndex) GetChunks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byId := make(map[uuid.UUID]*entity.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			cp := *c
			byId[id] = &cp
		}
	}
	return byId, nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ChunksOf returns a document's chunks ordered by position.
func (m *MemoryIndex) ChunksOf(documentId uuid.UUID) []*entity.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entity.Chunk, 0, len(m.hashes[documentId]))
	for _, id := range m.hashes[documentId] {
		cp := *m.chunks[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *MemoryIndex) insertChunk(c *entity.Chunk) {
	cp := *c
	cp.Id = uuid.New()
	cp.CreatedAt = time.Now()
	cp.Embedding = append([]float32(nil), c.Embedding...)
	c.Id = cp.Id
	c.CreatedAt = cp.CreatedAt

	m.chunks[cp.Id] = &cp
	if m.hashes[cp.DocumentId] == nil {
		m.hashes[cp.DocumentId] = make(map[string]uuid.UUID)
	}
	m.hashes[cp.DocumentId][cp.ContentHash] = cp.Id
}

func (m *MemoryIndex) removeChunk(id uuid.UUID) {
	c, ok := m.chunks[id]
	if !ok {
		return
	}
	delete(m.chunks, id)
	if byHash := m.hashes[c.DocumentId]; byHash != nil && byHash[c.ContentHash] == id {
		delete(byHash, c.ContentHash)
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func topHits(hits []Hit, k int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkId.String() < hits[j].ChunkId.String()
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
