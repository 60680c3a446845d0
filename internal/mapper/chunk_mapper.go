package mapper

import (
	"encoding/json"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type ChunkMapper struct{}

func NewChunkMapper() *ChunkMapper {
	return &ChunkMapper{}
}

func (m *ChunkMapper) ToEntity(c *model.Chunk) *entity.Chunk {
	if c == nil {
		return nil
	}

	meta := entity.ChunkMetadata{}
	if len(c.Metadata) > 0 {
		// Columns are authoritative; the JSON only adds optional fields such as category.
		_ = json.Unmarshal(c.Metadata, &meta)
	}
	meta.SourceURL = c.SourceURL
	meta.Title = c.Title
	meta.SourceType = entity.SourceType(c.SourceType)
	if c.TimestampRange != nil {
		meta.TimestampRange = *c.TimestampRange
	}

	return &entity.Chunk{
		Id:          c.Id,
		DocumentId:  c.DocumentId,
		Text:        c.Text,
		Position:    c.Position,
		TokenCount:  c.TokenCount,
		ContentHash: c.ContentHash,
		Embedding:   c.Embedding.Slice(),
		SearchTerms: c.SearchTerms,
		PublishedAt: c.PublishedAt,
		Metadata:    meta,
		CreatedAt:   c.CreatedAt,
	}
}

func (m *ChunkMapper) ToModel(c *entity.Chunk) *model.Chunk {
	if c == nil {
		return nil
	}

	var timestampRange *string
	if c.Metadata.TimestampRange != "" {
		tr := c.Metadata.TimestampRange
		timestampRange = &tr
	}

	metaJSON, _ := json.Marshal(c.Metadata)

	return &model.Chunk{
		Id:             c.Id,
		DocumentId:     c.DocumentId,
		Text:           c.Text,
		Position:       c.Position,
		TokenCount:     c.TokenCount,
		ContentHash:    c.ContentHash,
		Embedding:      pgvector.NewVector(c.Embedding),
		SearchTerms:    c.SearchTerms,
		SourceURL:      c.Metadata.SourceURL,
		Title:          c.Metadata.Title,
		SourceType:     string(c.Metadata.SourceType),
		PublishedAt:    c.PublishedAt,
		TimestampRange: timestampRange,
		Metadata:       datatypes.JSON(metaJSON),
		CreatedAt:      c.CreatedAt,
	}
}

func (m *ChunkMapper) ToEntities(chunks []*model.Chunk) []*entity.Chunk {
	entities := make([]*entity.Chunk, len(chunks))
	for i, c := range chunks {
		entities[i] = m.ToEntity(c)
	}
	return entities
}

func (m *ChunkMapper) ToModels(chunks []*entity.Chunk) []*model.Chunk {
	models := make([]*model.Chunk, len(chunks))
	for i, c := range chunks {
		models[i] = m.ToModel(c)
	}
	return models
}
