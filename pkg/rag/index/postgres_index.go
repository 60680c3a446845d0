package index

import (
	"context"
	"fmt"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/repository/contract"
	"oncare-chatbot-be/internal/repository/specification"
	"oncare-chatbot-be/internal/repository/unitofwork"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/lexical"

	"github.com/google/uuid"
)

// PostgresIndex stores chunks in Postgres. Vectors live in a pgvector HNSW index and keywords in a
// generated tsvector column with a GIN index.
type PostgresIndex struct {
	uowFactory unitofwork.RepositoryFactory
	locks      *DocumentLocks
	efSearch   int
	dimension  int
}

var _ Index = (*PostgresIndex)(nil)

func NewPostgresIndex(uowFactory unitofwork.RepositoryFactory, efSearch int) *PostgresIndex {
	return &PostgresIndex{
		uowFactory: uowFactory,
		locks:      NewDocumentLocks(),
		efSearch:   efSearch,
		dimension:  entity.EmbeddingDimension,
	}
}

func storageError(err error) error {
	if err == nil {
		return nil
	}
	return apperror.ErrStorageUnavailable.Wrap(err)
}

func (p *PostgresIndex) SaveDocument(ctx context.Context, doc *entity.Document) error {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	return storageError(uow.DocumentRepository().Upsert(ctx, doc))
}

func (p *PostgresIndex) GetDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, storageError(err)
	}
	if doc == nil {
		return nil, apperror.ErrDocumentNotFound.WithDetail("document_id", id.String())
	}
	return doc, nil
}

func (p *PostgresIndex) ListDocuments(ctx context.Context, filter entity.DocumentFilter) ([]*entity.Document, int64, error) {
	var specs []specification.Specification
	if filter.Category != "" {
		specs = append(specs, specification.ByCategory{Category: filter.Category})
	}
	if filter.IncompleteOnly {
		specs = append(specs, specification.IncompleteOnly{})
	}

	uow := p.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.DocumentRepository().Count(ctx, specs...)
	if err != nil {
		return nil, 0, storageError(err)
	}

	page := append(specs,
		specification.OrderBy{Field: "updated_at", Desc: true},
		specification.Pagination{Limit: filter.Limit, Offset: filter.Offset},
	)
	docs, err := uow.DocumentRepository().FindAll(ctx, page...)
	if err != nil {
		return nil, 0, storageError(err)
	}
	return docs, total, nil
}

func (p *PostgresIndex) MarkIngested(ctx context.Context, id uuid.UUID, chunkCount int, incomplete bool) error {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	return storageError(uow.DocumentRepository().UpdateIngestState(ctx, id, chunkCount, incomplete))
}

func (p *PostgresIndex) ExistingHashes(ctx context.Context, documentId uuid.UUID) (map[string]bool, error) {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	refs, err := uow.ChunkRepository().FindHashesByDocumentId(ctx, documentId)
	if err != nil {
		return nil, storageError(err)
	}
	hashes := make(map[string]bool, len(refs))
	for hash := range refs {
		hashes[hash] = true
	}
	return hashes, nil
}

func (p *PostgresIndex) Upsert(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, error) {
	unlock := p.locks.Lock(documentId.String())
	defer unlock()

	var stats *entity.UpsertStats
	err := p.inTransaction(ctx, documentId, func(repo contract.ChunkRepository) error {
		stored, err := repo.FindHashesByDocumentId(ctx, documentId)
		if err != nil {
			return err
		}
		existing := make(map[string]bool, len(stored))
		refs := make(map[string]storedRef, len(stored))
		for hash, ref := range stored {
			existing[hash] = true
			refs[hash] = storedRef{id: ref.Id, position: ref.Position, metadata: ref.Metadata, publishedAt: ref.PublishedAt}
		}
		if err := validateChunks(documentId, chunks, p.dimension, existing); err != nil {
			return err
		}

		plan := planDiff(refs, chunks)
		if err := repo.DeleteByIds(ctx, plan.deleted); err != nil {
			return err
		}
		for _, u := range plan.updated {
			if err := repo.UpdateKept(ctx, u.id, u.chunk); err != nil {
				return err
			}
		}
		if err := repo.CreateBulk(ctx, plan.inserted); err != nil {
			return err
		}
		stats = plan.stats(documentId)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *PostgresIndex) Replace(ctx context.Context, documentId uuid.UUID, chunks []*entity.Chunk) (*entity.UpsertStats, error) {
	if err := validateChunks(documentId, chunks, p.dimension, nil); err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(documentId.String())
	defer unlock()

	var stats *entity.UpsertStats
	err := p.inTransaction(ctx, documentId, func(repo contract.ChunkRepository) error {
		previous, err := repo.Count(ctx, specification.ByDocumentID{DocumentID: documentId})
		if err != nil {
			return err
		}
		if err := repo.DeleteByDocumentId(ctx, documentId); err != nil {
			return err
		}
		if err := repo.CreateBulk(ctx, chunks); err != nil {
			return err
		}
		stats = &entity.UpsertStats{DocumentId: documentId, Inserted: len(chunks), Deleted: int(previous)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *PostgresIndex) Delete(ctx context.Context, documentId uuid.UUID) error {
	unlock := p.locks.Lock(documentId.String())
	defer unlock()

	uow := p.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return storageError(err)
	}
	defer uow.Rollback()

	doc, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: documentId})
	if err != nil {
		return storageError(err)
	}
	if doc == nil {
		return apperror.ErrDocumentNotFound.WithDetail("document_id", documentId.String())
	}
	// chunks go with the document through ON DELETE CASCADE
	if err := uow.DocumentRepository().Delete(ctx, documentId); err != nil {
		return storageError(err)
	}
	return storageError(uow.Commit())
}

func (p *PostgresIndex) VectorSearch(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	if len(embedding) != p.dimension {
		return nil, apperror.ErrDimensionMismatch.Wrap(fmt.Errorf("query vector has %d components, want %d", len(embedding), p.dimension))
	}
	uow := p.uowFactory.NewUnitOfWork(ctx)
	rows, err := uow.ChunkRepository().VectorSearch(ctx, embedding, k, p.efSearch)
	if err != nil {
		return nil, storageError(err)
	}
	return toHits(rows), nil
}

func (p *PostgresIndex) KeywordSearch(ctx context.Context, text string, k int) ([]Hit, error) {
	terms := lexical.UniqueTerms(text)
	if len(terms) == 0 {
		return nil, nil
	}
	uow := p.uowFactory.NewUnitOfWork(ctx)
	rows, err := uow.ChunkRepository().KeywordSearch(ctx, terms, k)
	if err != nil {
		return nil, storageError(err)
	}
	return toHits(rows), nil
}

func (p *PostgresIndex) GetChunks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Chunk, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*entity.Chunk{}, nil
	}
	uow := p.uowFactory.NewUnitOfWork(ctx)
	chunks, err := uow.ChunkRepository().FindAll(ctx, specification.ByIDs{IDs: ids})
	if err != nil {
		return nil, storageError(err)
	}
	byId := make(map[uuid.UUID]*entity.Chunk, len(chunks))
	for _, c := range chunks {
		byId[c.Id] = c
	}
	return byId, nil
}

func (p *PostgresIndex) Ping(ctx context.Context) error {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	_, err := uow.DocumentRepository().Count(ctx)
	return storageError(err)
}

// inTransaction runs fn inside a transaction holding the document's advisory lock, so writers in
// other processes are serialized too.
func (p *PostgresIndex) inTransaction(ctx context.Context, documentId uuid.UUID, fn func(repo contract.ChunkRepository) error) error {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return storageError(err)
	}
	committed := false
	defer func() {
		if !committed {
			uow.Rollback()
		}
	}()

	repo := uow.ChunkRepository()
	if err := repo.LockDocument(ctx, documentId); err != nil {
		return storageError(err)
	}
	if err := fn(repo); err != nil {
		if apperror.TypeOf(err) == apperror.ErrorTypeInternal {
			return storageError(err)
		}
		return err
	}
	if err := uow.Commit(); err != nil {
		return storageError(err)
	}
	committed = true
	return nil
}

func toHits(rows []contract.ScoredChunkHit) []Hit {
	hits := make([]Hit, len(rows))
	for i, row := range rows {
		hits[i] = Hit{ChunkId: row.ChunkId, DocumentId: row.DocumentId, Score: row.Score}
	}
	return hits
}
