package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/hashing"
	"oncare-chatbot-be/pkg/lexical"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func newChunk(position int, text string, vec ...float32) *entity.Chunk {
	return &entity.Chunk{
		Text:        text,
		Position:    position,
		ContentHash: hashing.SumString(text),
		Embedding:   vec,
		SearchTerms: lexical.Terms(text),
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Metadata: entity.ChunkMetadata{
			SourceURL:  "https://hospital.example/blog/1",
			Title:      "독감",
			SourceType: entity.SourceTypeBlog,
		},
	}
}

func savedDocument(t *testing.T, idx *MemoryIndex) *entity.Document {
	t.Helper()
	doc := &entity.Document{SourceURL: "https://hospital.example/blog/1", Title: "독감", SourceType: entity.SourceTypeBlog}
	require.NoError(t, idx.SaveDocument(context.Background(), doc))
	return doc
}

func TestMemoryIndex_UpsertIsIdempotent(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()
	doc := savedDocument(t, idx)

	chunks := []*entity.Chunk{
		newChunk(0, "독감 예방접종", 1, 0, 0, 0),
		newChunk(1, "항암 치료", 0, 1, 0, 0),
	}
	stats, err := idx.Upsert(ctx, doc.Id, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)

	first := idx.ChunksOf(doc.Id)

	again := []*entity.Chunk{
		newChunk(0, "독감 예방접종"),
		newChunk(1, "항암 치료"),
	}
	stats, err = idx.Upsert(ctx, doc.Id, again)
	require.NoError(t, err)
	assert.False(t, stats.Changed())
	assert.Equal(t, 2, stats.Unchanged)

	second := idx.ChunksOf(doc.Id)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].Id, second[i].Id)
		assert.Equal(t, first[i].Embedding, second[i].Embedding)
	}
}

func TestMemoryIndex_UpsertReplacesOnlyChangedChunks(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()
	doc := savedDocument(t, idx)

	_, err := idx.Upsert(ctx, doc.Id, []*entity.Chunk{
		newChunk(0, "첫 문단", 1, 0, 0, 0),
		newChunk(1, "둘째 문단", 0, 1, 0, 0),
		newChunk(2, "셋째 문단", 0, 0, 1, 0),
	})
	require.NoError(t, err)
	before := idx.ChunksOf(doc.Id)

	stats, err := idx.Upsert(ctx, doc.Id, []*entity.Chunk{
		newChunk(0, "첫 문단"),
		newChunk(1, "새 문단", 0, 0, 0, 1),
		newChunk(2, "셋째 문단"),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.UpsertStats{DocumentId: doc.Id, Inserted: 1, Unchanged: 2, Deleted: 1}, *stats)

	after := idx.ChunksOf(doc.Id)
	require.Len(t, after, 3)
	assert.Equal(t, before[0].Id, after[0].Id)
	assert.NotEqual(t, before[1].Id, after[1].Id)
	assert.Equal(t, "새 문단", after[1].Text)
	assert.Equal(t, before[2].Id, after[2].Id)
}

func TestMemoryIndex_UpsertMovesPositions(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()
	doc := savedDocument(t, idx)

	_, err := idx.Upsert(ctx, doc.Id, []*entity.Chunk{
		newChunk(0, "첫 문단", 1, 0, 0, 0),
		newChunk(1, "둘째 문단", 0, 1, 0, 0),
	})
	require.NoError(t, err)

	stats, err := idx.Upsert(ctx, doc.Id, []*entity.Chunk{
		newChunk(0, "머리말", 0, 0, 1, 0),
		newChunk(1, "첫 문단"),
		newChunk(2, "둘째 문단"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 2, stats.Moved)

	after := idx.ChunksOf(doc.Id)
	require.Len(t, after, 3)
	assert.Equal(t, []string{"머리말", "첫 문단", "둘째 문단"}, []string{after[0].Text, after[1].Text, after[2].Text})
}

func TestMemoryIndex_UpsertRefreshesKeptMetadata(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()
	doc := savedDocument(t, idx)

	_, err := idx.Upsert(ctx, doc.Id, []*entity.Chunk{
		newChunk(0, "첫 문단", 1, 0, 0, 0),
		newChunk(1, "둘째 문단", 0, 1, 0, 0),
	})
	require.NoError(t, err)
	before := idx.ChunksOf(doc.Id)

	retitled := func(position int, text string) *entity.Chunk {
		c := newChunk(position, text)
		c.Metadata.Title = "독감 예방접종 2025"
		c.Metadata.Category = "general"
		c.PublishedAt = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		c.SearchTerms = lexical.Terms(c.Metadata.Title + "\n" + text)
		return c
	}

	tests := []struct {
		name          string
		chunks        []*entity.Chunk
		wantRefreshed int
		wantUnchanged int
		wantChanged   bool
	}{
		{
			name:          "retitled document rewrites kept rows",
			chunks:        []*entity.Chunk{retitled(0, "첫 문단"), retitled(1, "둘째 문단")},
			wantRefreshed: 2,
			wantUnchanged: 2,
			wantChanged:   true,
		},
		{
			name:          "same metadata again is a no-op",
			chunks:        []*entity.Chunk{retitled(0, "첫 문단"), retitled(1, "둘째 문단")},
			wantRefreshed: 0,
			wantUnchanged: 2,
			wantChanged:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := idx.Upsert(ctx, doc.Id, tt.chunks)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefreshed, stats.Refreshed)
			assert.Equal(t, tt.wantUnchanged, stats.Unchanged)
			assert.Equal(t, 0, stats.Inserted)
			assert.Equal(t, tt.wantChanged, stats.Changed())

			after := idx.ChunksOf(doc.Id)
			require.Len(t, after, 2)
			for i := range after {
				assert.Equal(t, before[i].Id, after[i].Id, "kept rows keep their id")
				assert.Equal(t, before[i].Embedding, after[i].Embedding)
				assert.Equal(t, "독감 예방접종 2025", after[i].Metadata.Title)
				assert.Equal(t, "general", after[i].Metadata.Category)
				assert.True(t, after[i].PublishedAt.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
			}
		})
	}

	hits, err := idx.KeywordSearch(ctx, "2025", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "search terms follow the new title")
}

func TestMemoryIndex_UpsertValidation(t *testing.T) {
	tests := []struct {
		name   string
		chunks []*entity.Chunk
		target error
	}{
		{
			name:   "missing embedding for new chunk",
			chunks: []*entity.Chunk{newChunk(0, "독감")},
			target: apperror.ErrMissingEmbedding,
		},
		{
			name:   "wrong embedding dimension",
			chunks: []*entity.Chunk{newChunk(0, "독감", 1, 0)},
			target: apperror.ErrDimensionMismatch,
		},
		{
			name: "missing provenance",
			chunks: func() []*entity.Chunk {
				c := newChunk(0, "독감", 1, 0, 0, 0)
				c.Metadata.Title = ""
				return []*entity.Chunk{c}
			}(),
			target: apperror.ErrMalformedChunk,
		},
		{
			name:   "duplicate hash",
			chunks: []*entity.Chunk{newChunk(0, "독감", 1, 0, 0, 0), newChunk(1, "독감", 1, 0, 0, 0)},
			target: apperror.ErrMalformedChunk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewMemoryIndex(testDim)
			doc := savedDocument(t, idx)

			_, err := idx.Upsert(context.Background(), doc.Id, tt.chunks)
			assert.True(t, errors.Is(err, tt.target))
			assert.Empty(t, idx.ChunksOf(doc.Id))
		})
	}
}

func TestMemoryIndex_ReplaceAndDelete(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()
	doc := savedDocument(t, idx)

	_, err := idx.Upsert(ctx, doc.Id, []*entity.Chunk{newChunk(0, "독감", 1, 0, 0, 0)})
	require.NoError(t, err)
	old := idx.ChunksOf(doc.Id)

	stats, err := idx.Replace(ctx, doc.Id, []*entity.Chunk{newChunk(0, "독감", 1, 0, 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Deleted)
	assert.NotEqual(t, old[0].Id, idx.ChunksOf(doc.Id)[0].Id)

	require.NoError(t, idx.Delete(ctx, doc.Id))
	assert.Empty(t, idx.ChunksOf(doc.Id))
	hits, err := idx.VectorSearch(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = idx.GetDocument(ctx, doc.Id)
	assert.True(t, apperror.IsNotFoundError(err))
	assert.True(t, apperror.IsNotFoundError(idx.Delete(ctx, doc.Id)))
}

func TestMemoryIndex_SaveDocumentKeepsIdPerSource(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()

	first := &entity.Document{SourceURL: "https://hospital.example/v/1", Title: "a"}
	require.NoError(t, idx.SaveDocument(ctx, first))
	second := &entity.Document{SourceURL: "https://hospital.example/v/1", Title: "b"}
	require.NoError(t, idx.SaveDocument(ctx, second))

	assert.Equal(t, first.Id, second.Id)
	stored, err := idx.GetDocument(ctx, first.Id)
	require.NoError(t, err)
	assert.Equal(t, "b", stored.Title)
}

func TestMemoryIndex_Search(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()
	doc := savedDocument(t, idx)

	_, err := idx.Upsert(ctx, doc.Id, []*entity.Chunk{
		newChunk(0, "독감 예방접종은 매년 10월에 권장됩니다", 1, 0, 0, 0),
		newChunk(1, "항암 치료 후 식단 관리", 0, 1, 0, 0),
		newChunk(2, "독감 증상과 관리", 0.7, 0.7, 0, 0),
	})
	require.NoError(t, err)

	t.Run("vector hits ordered by cosine", func(t *testing.T) {
		hits, err := idx.VectorSearch(ctx, []float32{1, 0, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.Greater(t, hits[0].Score, hits[1].Score)
	})

	t.Run("vector dimension checked", func(t *testing.T) {
		_, err := idx.VectorSearch(ctx, []float32{1, 0}, 2)
		assert.True(t, errors.Is(err, apperror.ErrDimensionMismatch))
	})

	t.Run("keyword hits only matching chunks", func(t *testing.T) {
		hits, err := idx.KeywordSearch(ctx, "독감 예방접종 언제 맞아야 하나요?", 5)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		chunks, err := idx.GetChunks(ctx, []uuid.UUID{hits[0].ChunkId})
		require.NoError(t, err)
		assert.Contains(t, chunks[hits[0].ChunkId].Text, "예방접종")
	})

	t.Run("keyword miss", func(t *testing.T) {
		hits, err := idx.KeywordSearch(ctx, "우주여행 보험", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestDocumentLocks_SerializesSameDocument(t *testing.T) {
	locks := NewDocumentLocks()
	id := uuid.New()

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(id.String())
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Empty(t, locks.locks)
}

func TestMemoryIndex_ListDocuments(t *testing.T) {
	idx := NewMemoryIndex(testDim)
	ctx := context.Background()

	for i, category := range []string{"cancer", "general", "cancer"} {
		doc := &entity.Document{
			SourceURL:  "https://hospital.example/list/" + string(rune('a'+i)),
			Title:      "문서",
			SourceType: entity.SourceTypeBlog,
			Category:   category,
			RawText:    "본문",
		}
		require.NoError(t, idx.SaveDocument(ctx, doc))
		if i == 2 {
			require.NoError(t, idx.MarkIngested(ctx, doc.Id, 0, true))
		}
	}

	docs, total, err := idx.ListDocuments(ctx, entity.DocumentFilter{Category: "cancer"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, docs, 2)
	for _, d := range docs {
		assert.Empty(t, d.RawText)
	}

	docs, total, err = idx.ListDocuments(ctx, entity.DocumentFilter{IncompleteOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://hospital.example/list/c", docs[0].SourceURL)

	docs, total, err = idx.ListDocuments(ctx, entity.DocumentFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, docs, 1)

	docs, _, err = idx.ListDocuments(ctx, entity.DocumentFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
