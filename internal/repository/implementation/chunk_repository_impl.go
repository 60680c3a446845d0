package implementation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/mapper"
	"oncare-chatbot-be/internal/model"
	"oncare-chatbot-be/internal/repository/contract"
	"oncare-chatbot-be/internal/repository/scope"
	"oncare-chatbot-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const insertBatchSize = 100

type ChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChunkMapper
}

func NewChunkRepository(db *gorm.DB) contract.ChunkRepository {
	return &ChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewChunkMapper(),
	}
}

func (r *ChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := r.mapper.ToModels(chunks)
	if err := r.db.WithContext(ctx).CreateInBatches(models, insertBatchSize).Error; err != nil {
		return err
	}
	for i, m := range models {
		chunks[i].Id = m.Id
		chunks[i].CreatedAt = m.CreatedAt
	}
	return nil
}

func (r *ChunkRepositoryImpl) UpdateKept(ctx context.Context, id uuid.UUID, chunk *entity.Chunk) error {
	m := r.mapper.ToModel(chunk)
	return r.db.WithContext(ctx).
		Model(&model.Chunk{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"position":        m.Position,
			"search_terms":    m.SearchTerms,
			"source_url":      m.SourceURL,
			"title":           m.Title,
			"source_type":     m.SourceType,
			"published_at":    m.PublishedAt,
			"timestamp_range": m.TimestampRange,
			"metadata":        m.Metadata,
		}).Error
}

func (r *ChunkRepositoryImpl) DeleteByIds(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Chunk{}).Error
}

func (r *ChunkRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentId).Delete(&model.Chunk{}).Error
}

func (r *ChunkRepositoryImpl) FindHashesByDocumentId(ctx context.Context, documentId uuid.UUID) (map[string]contract.StoredChunkRef, error) {
	var rows []*model.Chunk
	err := r.db.WithContext(ctx).
		Model(&model.Chunk{}).
		Select("id, content_hash, position, source_url, title, source_type, published_at, timestamp_range, metadata").
		Where("document_id = ?", documentId).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	refs := make(map[string]contract.StoredChunkRef, len(rows))
	for _, row := range rows {
		stored := r.mapper.ToEntity(row)
		refs[row.ContentHash] = contract.StoredChunkRef{
			Id:          row.Id,
			Position:    row.Position,
			Metadata:    stored.Metadata,
			PublishedAt: row.PublishedAt,
		}
	}
	return refs, nil
}

func (r *ChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Chunk, error) {
	var models []*model.Chunk
	query := r.applySpecifications(r.db.WithContext(ctx).Scopes(scope.WithoutEmbedding), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ChunkRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.Chunk{}).Count(&count).Error
	return count, err
}

func (r *ChunkRepositoryImpl) LockDocument(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", documentId.String()).Error
}

func (r *ChunkRepositoryImpl) VectorSearch(ctx context.Context, embedding []float32, k int, efSearch int) ([]contract.ScoredChunkHit, error) {
	if k <= 0 {
		return nil, nil
	}
	queryVector := pgvector.NewVector(embedding)

	var hits []contract.ScoredChunkHit
	// SET LOCAL only lives for the enclosing transaction.
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if efSearch > 0 {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)).Error; err != nil {
				return err
			}
		}
		return tx.Raw(
			`SELECT id AS chunk_id, document_id, 1 - (embedding <=> ?) AS score
			FROM chunks
			ORDER BY embedding <=> ?
			LIMIT ?`,
			queryVector, queryVector, k,
		).Scan(&hits).Error
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (r *ChunkRepositoryImpl) KeywordSearch(ctx context.Context, terms []string, k int) ([]contract.ScoredChunkHit, error) {
	tsQuery := BuildTsQuery(terms)
	if tsQuery == "" || k <= 0 {
		return nil, nil
	}

	var hits []contract.ScoredChunkHit
	err := r.db.WithContext(ctx).Raw(
		`SELECT id AS chunk_id, document_id, ts_rank_cd(search_vector, q) AS score
		FROM chunks, to_tsquery('simple', ?) q
		WHERE search_vector @@ q
		ORDER BY score DESC, published_at DESC, id ASC
		LIMIT ?`,
		tsQuery, k,
	).Scan(&hits).Error
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// BuildTsQuery ORs the terms into a tsquery string, dropping tsquery operators from each term.
func BuildTsQuery(terms []string) string {
	seen := make(map[string]bool, len(terms))
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, term)
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		parts = append(parts, clean)
	}
	return strings.Join(parts, " | ")
}
