package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/chunker"
	"oncare-chatbot-be/pkg/embedding"
	"oncare-chatbot-be/pkg/events"
	"oncare-chatbot-be/pkg/rag/index"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	next  embedding.EmbeddingProvider
	calls atomic.Int32
}

func (e *countingEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	e.calls.Add(1)
	return e.next.Generate(ctx, text, taskType)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) InvalidateCache(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// flakyIndex fails the first Upsert with a serialization failure.
type flakyIndex struct {
	*index.MemoryIndex
	failures atomic.Int32
}

func (f *flakyIndex) Upsert(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, apperror.ErrStorageUnavailable.Wrap(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	}
	return f.MemoryIndex.Upsert(ctx, documentId, chunks)
}

type fixture struct {
	index       *index.MemoryIndex
	embedder    *countingEmbedder
	invalidator *MockInvalidator
	publisher   *recordingPublisher
	service     IIngestionService
}

func newFixture(t *testing.T, idx index.Index, mem *index.MemoryIndex) *fixture {
	return newFixtureWithEmbedder(t, idx, mem, embedding.NewLexicalProvider(entity.EmbeddingDimension))
}

func newFixtureWithEmbedder(t *testing.T, idx index.Index, mem *index.MemoryIndex, next embedding.EmbeddingProvider) *fixture {
	t.Helper()
	embedder := &countingEmbedder{next: next}
	invalidator := new(MockInvalidator)
	invalidator.On("InvalidateCache", mock.Anything).Return(nil)
	publisher := &recordingPublisher{}

	svc := NewIngestionService(
		idx,
		chunker.New(chunker.WithTokenBand(3, 12), chunker.WithTokenCounter(func(s string) int { return len(strings.Fields(s)) })),
		embedder,
		nil,
		invalidator,
		publisher,
		IngestionConfig{Workers: 2, EmbedConcurrency: 2, MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		logger.NewNopLogger(),
	)
	return &fixture{index: mem, embedder: embedder, invalidator: invalidator, publisher: publisher, service: svc}
}

func newMemoryFixture(t *testing.T) *fixture {
	mem := index.NewMemoryIndex(entity.EmbeddingDimension)
	return newFixture(t, mem, mem)
}

func fluDocument(body string) *entity.Document {
	return &entity.Document{
		SourceURL:   "https://oncare.example/blog/flu",
		Title:       "독감 예방접종 안내",
		SourceType:  entity.SourceTypeBlog,
		PublishedAt: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		RawText:     body,
	}
}

const (
	paraA = "독감 예방접종은 매년 10월에 맞는 것이 좋습니다."
	paraB = "고위험군은 우선 접종 대상이며 의료진과 상담하세요."
	paraC = "접종 후 가벼운 발열은 하루 이틀 내에 좋아집니다."
	paraD = "접종 후 발열이 사흘 넘게 지속되면 병원에 연락하세요."
)

// gatedEmbedder blocks on texts containing hold until release is closed.
type gatedEmbedder struct {
	next    embedding.EmbeddingProvider
	hold    string
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (e *gatedEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	if strings.Contains(text, e.hold) {
		e.once.Do(func() { close(e.started) })
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.next.Generate(ctx, text, taskType)
}

// shrinkingIndex drops every chunk but the first right after the first ExistingHashes read,
// the way a writer in another process would.
type shrinkingIndex struct {
	*index.MemoryIndex
	reads atomic.Int32
}

func (s *shrinkingIndex) ExistingHashes(ctx context.Context, documentId uuid.UUID) (map[string]bool, error) {
	hashes, err := s.MemoryIndex.ExistingHashes(ctx, documentId)
	if err != nil || s.reads.Add(1) != 1 {
		return hashes, err
	}
	kept := s.MemoryIndex.ChunksOf(documentId)
	if len(kept) > 1 {
		if _, err := s.MemoryIndex.Upsert(ctx, documentId, kept[:1]); err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

func TestIngestDocument_IsIdempotent(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	body := strings.Join([]string{paraA, paraB, paraC}, "\n\n")

	first, err := f.service.IngestDocument(ctx, fluDocument(body))
	require.NoError(t, err)
	require.Greater(t, first.Stats.Inserted, 0)
	embedCalls := f.embedder.calls.Load()
	chunksBefore := f.index.ChunksOf(first.Document.Id)

	second, err := f.service.IngestDocument(ctx, fluDocument(body))
	require.NoError(t, err)

	assert.Equal(t, first.Document.Id, second.Document.Id)
	assert.False(t, second.Stats.Changed())
	assert.Equal(t, first.Stats.Inserted, second.Stats.Unchanged)
	assert.Equal(t, embedCalls, f.embedder.calls.Load(), "unchanged chunks must not be re-embedded")

	chunksAfter := f.index.ChunksOf(first.Document.Id)
	require.Len(t, chunksAfter, len(chunksBefore))
	for i := range chunksBefore {
		assert.Equal(t, chunksBefore[i].Id, chunksAfter[i].Id)
	}
	assert.Equal(t, []string{events.DocumentIndexed}, f.publisher.types())
}

func TestIngestDocument_ReplacesOnlyChangedChunks(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	first, err := f.service.IngestDocument(ctx, fluDocument(strings.Join([]string{paraA, paraB, paraC}, "\n\n")))
	require.NoError(t, err)
	before := f.index.ChunksOf(first.Document.Id)
	require.Len(t, before, 3)
	callsBefore := f.embedder.calls.Load()

	changed := "접종 후 발열이 사흘 넘게 지속되면 병원에 연락하세요."
	second, err := f.service.IngestDocument(ctx, fluDocument(strings.Join([]string{paraA, paraB, changed}, "\n\n")))
	require.NoError(t, err)

	assert.Equal(t, 1, second.Stats.Inserted)
	assert.Equal(t, 1, second.Stats.Deleted)
	assert.Equal(t, 2, second.Stats.Unchanged)
	assert.Equal(t, callsBefore+1, f.embedder.calls.Load())

	after := f.index.ChunksOf(first.Document.Id)
	require.Len(t, after, 3)
	assert.Equal(t, before[0].Id, after[0].Id)
	assert.Equal(t, before[1].Id, after[1].Id)
	assert.NotEqual(t, before[2].Id, after[2].Id)
	assert.Equal(t, changed, after[2].Text)
}

func TestIngestDocument_AssignsCategory(t *testing.T) {
	f := newMemoryFixture(t)

	doc := fluDocument("고주파 온열치료는 암 환자의 면역 회복을 돕습니다.")
	doc.Title = "고주파 온열치료"
	res, err := f.service.IngestDocument(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "cancer", res.Document.Category)
	chunks := f.index.ChunksOf(res.Document.Id)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "cancer", chunks[0].Metadata.Category)
}

func TestIngestDocument_MalformedDocumentIsFlaggedIncomplete(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	doc := fluDocument(paraA)
	doc.Title = ""
	res, err := f.service.IngestDocument(ctx, doc)
	require.NoError(t, err)
	assert.True(t, res.Incomplete)

	stored, err := f.index.GetDocument(ctx, res.Document.Id)
	require.NoError(t, err)
	assert.True(t, stored.Incomplete)
	assert.Empty(t, f.index.ChunksOf(res.Document.Id))
	assert.Equal(t, int32(0), f.embedder.calls.Load())
}

func TestIngestDocument_RejectsInvalidInput(t *testing.T) {
	f := newMemoryFixture(t)

	tests := []struct {
		name string
		doc  *entity.Document
	}{
		{name: "nil", doc: nil},
		{name: "no source url", doc: &entity.Document{Title: "x", SourceType: entity.SourceTypeBlog}},
		{name: "unknown source type", doc: &entity.Document{SourceURL: "https://x", Title: "x", SourceType: "podcast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.IngestDocument(context.Background(), tt.doc)
			assert.True(t, apperror.IsValidationError(err))
		})
	}
}

func TestIngestDocument_RetriesTransientStorageErrors(t *testing.T) {
	mem := index.NewMemoryIndex(entity.EmbeddingDimension)
	flaky := &flakyIndex{MemoryIndex: mem}
	flaky.failures.Store(1)
	f := newFixture(t, flaky, mem)

	res, err := f.service.IngestDocument(context.Background(), fluDocument(paraA))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Inserted)
}

func TestIngestDocuments_RunsBatchOnWorkerPool(t *testing.T) {
	f := newMemoryFixture(t)

	var docs []*entity.Document
	for i := 0; i < 6; i++ {
		doc := fluDocument(fmt.Sprintf("문서 %d 본문입니다. %s", i, paraA))
		doc.SourceURL = fmt.Sprintf("https://oncare.example/blog/%d", i)
		docs = append(docs, doc)
	}
	docs = append(docs, &entity.Document{SourceURL: "https://oncare.example/bad", SourceType: "podcast"})

	results, err := f.service.IngestDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, results, len(docs))

	for i := 0; i < 6; i++ {
		require.NoError(t, results[i].Err)
		assert.Equal(t, 1, len(f.index.ChunksOf(results[i].Document.Id)))
	}
	assert.True(t, apperror.IsValidationError(results[6].Err))
}

func TestDeleteDocument(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	res, err := f.service.IngestDocument(ctx, fluDocument(paraA))
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteDocument(ctx, res.Document.Id))
	assert.Empty(t, f.index.ChunksOf(res.Document.Id))
	assert.Equal(t, []string{events.DocumentIndexed, events.DocumentDeleted}, f.publisher.types())
	f.invalidator.AssertNumberOfCalls(t, "InvalidateCache", 2)

	err = f.service.DeleteDocument(ctx, res.Document.Id)
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))
}

func TestReindex_RebuildsChunks(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	res, err := f.service.IngestDocument(ctx, fluDocument(strings.Join([]string{paraA, paraB}, "\n\n")))
	require.NoError(t, err)
	before := f.index.ChunksOf(res.Document.Id)

	require.NoError(t, f.service.Reindex(ctx, res.Document.Id))

	after := f.index.ChunksOf(res.Document.Id)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ContentHash, after[i].ContentHash)
		assert.NotEqual(t, before[i].Id, after[i].Id)
	}
}

func TestListDocuments_ClampsPageSize(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.service.IngestDocument(ctx, fluDocument(paraA))
	require.NoError(t, err)

	docs, total, err := f.service.ListDocuments(ctx, entity.DocumentFilter{Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://oncare.example/blog/flu", docs[0].SourceURL)
	assert.Equal(t, 1, docs[0].ChunkCount)
}

func TestIngestDocument_SerializesWritersOfTheSameSource(t *testing.T) {
	mem := index.NewMemoryIndex(entity.EmbeddingDimension)
	gate := &gatedEmbedder{
		next:    embedding.NewLexicalProvider(entity.EmbeddingDimension),
		hold:    paraD,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixtureWithEmbedder(t, mem, mem, gate)
	ctx := context.Background()

	seed, err := f.service.IngestDocument(ctx, fluDocument(strings.Join([]string{paraA, paraB}, "\n\n")))
	require.NoError(t, err)

	type outcome struct {
		res *IngestResult
		err error
	}
	slow := make(chan outcome, 1)
	go func() {
		res, err := f.service.IngestDocument(ctx, fluDocument(strings.Join([]string{paraB, paraD}, "\n\n")))
		slow <- outcome{res, err}
	}()
	<-gate.started

	fast := make(chan outcome, 1)
	go func() {
		res, err := f.service.IngestDocument(ctx, fluDocument(strings.Join([]string{paraA, paraC}, "\n\n")))
		fast <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	first, second := <-slow, <-fast
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.False(t, first.res.Incomplete)
	assert.False(t, second.res.Incomplete)

	chunks := f.index.ChunksOf(seed.Document.Id)
	require.Len(t, chunks, 2)
	assert.Equal(t, paraA, chunks[0].Text)
	assert.Equal(t, paraC, chunks[1].Text)

	stored, err := f.index.GetDocument(ctx, seed.Document.Id)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{paraA, paraC}, "\n\n"), stored.RawText)
	assert.False(t, stored.Incomplete)
}

func TestIngestDocument_ReembedsWhenStoredChunksChangeUnderneath(t *testing.T) {
	mem := index.NewMemoryIndex(entity.EmbeddingDimension)
	shrinking := &shrinkingIndex{MemoryIndex: mem}
	f := newFixture(t, shrinking, mem)
	ctx := context.Background()
	body := strings.Join([]string{paraA, paraB, paraC}, "\n\n")

	// seed directly so the first ExistingHashes read goes through the shrinking wrapper
	seeded := fluDocument(body)
	require.NoError(t, mem.SaveDocument(ctx, seeded))
	chunks, err := chunker.New(chunker.WithTokenBand(3, 12), chunker.WithTokenCounter(func(s string) int { return len(strings.Fields(s)) })).Chunk(seeded)
	require.NoError(t, err)
	for _, c := range chunks {
		res, err := embedding.NewLexicalProvider(entity.EmbeddingDimension).Generate(ctx, chunker.EmbeddingInput(c), embedding.TaskTypeDocument)
		require.NoError(t, err)
		c.Embedding = res.Embedding.Values
	}
	_, err = mem.Upsert(ctx, seeded.Id, chunks)
	require.NoError(t, err)

	res, err := f.service.IngestDocument(ctx, fluDocument(body))
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.Equal(t, 2, res.Stats.Inserted)
	assert.Equal(t, int32(2), f.embedder.calls.Load())

	after := f.index.ChunksOf(seeded.Id)
	require.Len(t, after, 3)
	for i, want := range []string{paraA, paraB, paraC} {
		assert.Equal(t, want, after[i].Text)
		assert.NotEmpty(t, after[i].Embedding)
	}
}

func TestIngestDocument_StorageFailuresAreNotFlaggedIncomplete(t *testing.T) {
	mem := index.NewMemoryIndex(entity.EmbeddingDimension)
	f := newFixtureWithEmbedder(t, mem, mem, embedding.NewLexicalProvider(8))

	res, err := f.service.IngestDocument(context.Background(), fluDocument(paraA))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, apperror.ErrDimensionMismatch))

	docs, _, err := f.index.ListDocuments(context.Background(), entity.DocumentFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.False(t, docs[0].Incomplete)
}

func TestDeleteDocument_WaitsForInFlightIngest(t *testing.T) {
	mem := index.NewMemoryIndex(entity.EmbeddingDimension)
	gate := &gatedEmbedder{
		next:    embedding.NewLexicalProvider(entity.EmbeddingDimension),
		hold:    paraD,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixtureWithEmbedder(t, mem, mem, gate)
	ctx := context.Background()

	seed, err := f.service.IngestDocument(ctx, fluDocument(paraA))
	require.NoError(t, err)

	ingested := make(chan error, 1)
	go func() {
		_, err := f.service.IngestDocument(ctx, fluDocument(strings.Join([]string{paraA, paraD}, "\n\n")))
		ingested <- err
	}()
	<-gate.started

	deleted := make(chan error, 1)
	go func() { deleted <- f.service.DeleteDocument(ctx, seed.Document.Id) }()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	require.NoError(t, <-ingested)
	require.NoError(t, <-deleted)
	assert.Empty(t, f.index.ChunksOf(seed.Document.Id))
	_, err = f.index.GetDocument(ctx, seed.Document.Id)
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))
}

func TestIngestDocument_RetitleRefreshesKeptChunks(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	body := strings.Join([]string{paraA, paraB, paraC}, "\n\n")

	first, err := f.service.IngestDocument(ctx, fluDocument(body))
	require.NoError(t, err)
	calls := f.embedder.calls.Load()

	retitled := fluDocument(body)
	retitled.Title = "2025 독감 예방접종 일정"
	second, err := f.service.IngestDocument(ctx, retitled)
	require.NoError(t, err)

	assert.True(t, second.Stats.Changed())
	assert.Equal(t, first.Stats.Inserted, second.Stats.Refreshed)
	assert.Zero(t, second.Stats.Inserted)
	assert.Equal(t, calls, f.embedder.calls.Load(), "a new title alone must not re-embed")
	for _, c := range f.index.ChunksOf(first.Document.Id) {
		assert.Equal(t, "2025 독감 예방접종 일정", c.Metadata.Title)
		assert.Contains(t, c.SearchTerms, "2025")
	}
	assert.Equal(t, []string{events.DocumentIndexed, events.DocumentIndexed}, f.publisher.types())
}
