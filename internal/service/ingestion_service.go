// FILE: internal/service/ingestion_service.go
// PURPOSE: Write path: chunk documents, embed new chunks and diff-upsert them into the index

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/chunker"
	"oncare-chatbot-be/pkg/database"
	"oncare-chatbot-be/pkg/embedding"
	"oncare-chatbot-be/pkg/events"
	"oncare-chatbot-be/pkg/lexical"
	"oncare-chatbot-be/pkg/rag/index"
	"oncare-chatbot-be/pkg/source"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const ingestionModule = "IngestionService"

// CacheInvalidator drops cached answers after the corpus changes.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IngestionConfig struct {
	Workers          int
	EmbedConcurrency int
	MaxRetries       uint
	InitialInterval  time.Duration
	MaxInterval      time.Duration
}

func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		Workers:          4,
		EmbedConcurrency: 4,
		MaxRetries:       4,
		InitialInterval:  100 * time.Millisecond,
		MaxInterval:      2 * time.Second,
	}
}

// IngestResult reports what happened to one document. Err is set when the document could not be
// ingested at all; a document with malformed chunks is Incomplete without an Err.
type IngestResult struct {
	Document   *entity.Document
	Stats      *entity.UpsertStats
	Incomplete bool
	Err        error
}

type IIngestionService interface {
	IngestDocuments(ctx context.Context, docs []*entity.Document) ([]*IngestResult, error)
	IngestDocument(ctx context.Context, doc *entity.Document) (*IngestResult, error)
	IngestSource(ctx context.Context, sourceURL string) (*IngestResult, error)
	Reindex(ctx context.Context, documentId uuid.UUID) error
	DeleteDocument(ctx context.Context, documentId uuid.UUID) error
	ListDocuments(ctx context.Context, filter entity.DocumentFilter) ([]*entity.Document, int64, error)
}

type ingestionService struct {
	index       index.Index
	writers     *index.DocumentLocks
	chunker     *chunker.Chunker
	embedder    embedding.EmbeddingProvider
	fetcher     source.Fetcher
	invalidator CacheInvalidator
	publisher   EventPublisher
	cfg         IngestionConfig
	logger      logger.ILogger
}

func NewIngestionService(
	idx index.Index,
	ch *chunker.Chunker,
	embedder embedding.EmbeddingProvider,
	fetcher source.Fetcher,
	invalidator CacheInvalidator,
	publisher EventPublisher,
	cfg IngestionConfig,
	logger logger.ILogger,
) IIngestionService {
	def := DefaultIngestionConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = def.EmbedConcurrency
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	return &ingestionService{
		index:       idx,
		writers:     index.NewDocumentLocks(),
		chunker:     ch,
		embedder:    embedder,
		fetcher:     fetcher,
		invalidator: invalidator,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger,
	}
}

// IngestDocuments runs the batch on the worker pool. Per-document failures land in the results;
// the returned error is only set when ctx ends first.
func (s *ingestionService) IngestDocuments(ctx context.Context, docs []*entity.Document) ([]*IngestResult, error) {
	results := make([]*IngestResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			res, err := s.IngestDocument(gctx, doc)
			if res == nil {
				res = &IngestResult{Document: doc}
			}
			res.Err = err
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

func (s *ingestionService) IngestDocument(ctx context.Context, doc *entity.Document) (*IngestResult, error) {
	if doc == nil || strings.TrimSpace(doc.SourceURL) == "" {
		return nil, apperror.ErrInvalidInput.WithDetail("reason", "document requires source_url")
	}
	if !doc.SourceType.Valid() {
		return nil, apperror.ErrInvalidInput.WithDetail("source_type", string(doc.SourceType))
	}
	if doc.Category == "" {
		doc.Category = lexical.DetectCategory(doc.Title, doc.RawText)
	}

	// one writer per source at a time, from saving the row to the last chunk
	unlock := s.writers.Lock(doc.SourceURL)
	defer unlock()

	result := &IngestResult{Document: doc}
	if err := s.withRetry(ctx, func() error { return s.index.SaveDocument(ctx, doc) }); err != nil {
		return nil, err
	}

	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return s.rejectDocument(ctx, result, err)
	}

	stats, embedded, err := s.upsertChunks(ctx, doc.Id, chunks)
	if err != nil {
		return s.rejectDocument(ctx, result, err)
	}
	if err := s.index.MarkIngested(ctx, doc.Id, len(chunks), false); err != nil {
		return nil, err
	}
	result.Stats = stats

	s.logger.Info(ingestionModule, "Document ingested", map[string]interface{}{
		"document_id": doc.Id.String(),
		"source_url":  doc.SourceURL,
		"category":    doc.Category,
		"chunks":      len(chunks),
		"embedded":    embedded,
		"inserted":    stats.Inserted,
		"moved":       stats.Moved,
		"unchanged":   stats.Unchanged,
		"deleted":     stats.Deleted,
		"refreshed":   stats.Refreshed,
	})

	s.invalidate(ctx)
	if stats.Changed() {
		s.publish(ctx, events.New(events.DocumentIndexed, map[string]interface{}{
			"document_id": doc.Id.String(),
			"source_url":  doc.SourceURL,
			"chunk_count": len(chunks),
			"inserted":    stats.Inserted,
			"deleted":     stats.Deleted,
		}))
	}
	return result, nil
}

func (s *ingestionService) IngestSource(ctx context.Context, sourceURL string) (*IngestResult, error) {
	if s.fetcher == nil {
		return nil, apperror.ErrUpstreamUnavailable.Wrap(errors.New("no source fetcher configured"))
	}
	doc, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	return s.IngestDocument(ctx, doc)
}

// Reindex rebuilds every chunk of a stored document from its raw text. It repairs documents whose
// vector and keyword rows disagree.
func (s *ingestionService) Reindex(ctx context.Context, documentId uuid.UUID) error {
	doc, err := s.index.GetDocument(ctx, documentId)
	if err != nil {
		return err
	}
	defer s.writers.Lock(doc.SourceURL)()
	// reread under the lock so a concurrent ingest's raw text is the one rebuilt
	if doc, err = s.index.GetDocument(ctx, documentId); err != nil {
		return err
	}

	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		_, err = s.rejectDocument(ctx, &IngestResult{Document: doc}, err)
		return err
	}
	if _, err := s.embedMissing(ctx, chunks, nil); err != nil {
		return err
	}

	var stats *entity.UpsertStats
	err = s.withRetry(ctx, func() error {
		var replaceErr error
		stats, replaceErr = s.index.Replace(ctx, documentId, chunks)
		return replaceErr
	})
	if err != nil {
		return err
	}
	if err := s.index.MarkIngested(ctx, documentId, len(chunks), false); err != nil {
		return err
	}

	s.logger.Warn(ingestionModule, "Document reindexed", map[string]interface{}{
		"document_id": documentId.String(),
		"inserted":    stats.Inserted,
		"deleted":     stats.Deleted,
	})
	s.invalidate(ctx)
	return nil
}

func (s *ingestionService) DeleteDocument(ctx context.Context, documentId uuid.UUID) error {
	doc, err := s.index.GetDocument(ctx, documentId)
	if err != nil {
		return err
	}
	defer s.writers.Lock(doc.SourceURL)()

	err = s.withRetry(ctx, func() error { return s.index.Delete(ctx, documentId) })
	if err != nil {
		return err
	}

	s.logger.Info(ingestionModule, "Document deleted", map[string]interface{}{"document_id": documentId.String()})
	s.invalidate(ctx)
	s.publish(ctx, events.New(events.DocumentDeleted, map[string]interface{}{
		"document_id": documentId.String(),
	}))
	return nil
}

const (
	maxListLimit          = 100
	maxStaleWriteAttempts = 3
)

func (s *ingestionService) ListDocuments(ctx context.Context, filter entity.DocumentFilter) ([]*entity.Document, int64, error) {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.index.ListDocuments(ctx, filter)
}

// upsertChunks embeds the chunks the index does not hold yet and upserts the set. When another
// process changed the stored hashes in between, the index reports ErrMissingEmbedding and the
// diff is recomputed against the fresh hashes.
func (s *ingestionService) upsertChunks(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, int, error) {
	embedded := 0
	var err error
	for attempt := 0; attempt < maxStaleWriteAttempts; attempt++ {
		var existing map[string]bool
		existing, err = s.index.ExistingHashes(ctx, documentId)
		if err != nil {
			return nil, embedded, err
		}
		n, embedErr := s.embedMissing(ctx, chunks, existing)
		embedded += n
		if embedErr != nil {
			return nil, embedded, embedErr
		}

		var stats *entity.UpsertStats
		err = s.withRetry(ctx, func() error {
			var upsertErr error
			stats, upsertErr = s.index.Upsert(ctx, documentId, chunks)
			return upsertErr
		})
		if err == nil {
			return stats, embedded, nil
		}
		if !errors.Is(err, apperror.ErrMissingEmbedding) {
			return nil, embedded, err
		}
		s.logger.Warn(ingestionModule, "Stored chunks changed during ingestion, re-embedding", map[string]interface{}{
			"document_id": documentId.String(),
			"attempt":     attempt + 1,
		})
	}
	return nil, embedded, err
}

// embedMissing fills Embedding for chunks whose hash is not stored yet and that carry no vector,
// and returns how many it embedded.
func (s *ingestionService) embedMissing(ctx context.Context, chunks []*entity.Chunk, existing map[string]bool) (int, error) {
	var pending []*entity.Chunk
	for _, c := range chunks {
		if !existing[c.ContentHash] && len(c.Embedding) == 0 {
			pending = append(pending, c)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)
	for _, c := range pending {
		g.Go(func() error {
			res, err := s.embedder.Generate(gctx, chunker.EmbeddingInput(c), embedding.TaskTypeDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", c.Position, err)
			}
			c.Embedding = res.Embedding.Values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// rejectDocument flags a document incomplete when its chunks are malformed. Other errors pass through.
func (s *ingestionService) rejectDocument(ctx context.Context, result *IngestResult, cause error) (*IngestResult, error) {
	if apperror.TypeOf(cause) != apperror.ErrorTypeMalformedChunk {
		return nil, cause
	}

	s.logger.Warn(ingestionModule, "Document has malformed chunks, flagged incomplete", map[string]interface{}{
		"document_id": result.Document.Id.String(),
		"source_url":  result.Document.SourceURL,
		"error":       cause.Error(),
	})
	if err := s.index.MarkIngested(ctx, result.Document.Id, result.Document.ChunkCount, true); err != nil {
		return nil, err
	}
	result.Document.Incomplete = true
	result.Incomplete = true
	return result, nil
}

func (s *ingestionService) withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if database.IsTransient(err) {
			s.logger.Warn(ingestionModule, "Transient storage error, retrying", map[string]interface{}{"error": err.Error()})
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.cfg.MaxRetries))
	return err
}

func (s *ingestionService) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateCache(ctx); err != nil {
		s.logger.Warn(ingestionModule, "Failed to invalidate answer cache", map[string]interface{}{"error": err.Error()})
	}
}

func (s *ingestionService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn(ingestionModule, fmt.Sprintf("Failed to publish %s event", event.EventType()), map[string]interface{}{"error": err.Error()})
	}
}
