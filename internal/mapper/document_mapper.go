package mapper

import (
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/model"
)

type DocumentMapper struct{}

func NewDocumentMapper() *DocumentMapper {
	return &DocumentMapper{}
}

func (m *DocumentMapper) ToEntity(d *model.Document) *entity.Document {
	if d == nil {
		return nil
	}

	var updatedAt *time.Time
	if !d.UpdatedAt.IsZero() {
		t := d.UpdatedAt
		updatedAt = &t
	}

	return &entity.Document{
		Id:          d.Id,
		SourceURL:   d.SourceURL,
		Title:       d.Title,
		SourceType:  entity.SourceType(d.SourceType),
		Category:    d.Category,
		PublishedAt: d.PublishedAt,
		RawText:     d.RawText,
		Incomplete:  d.Incomplete,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   updatedAt,
	}
}

func (m *DocumentMapper) ToModel(d *entity.Document) *model.Document {
	if d == nil {
		return nil
	}

	var updatedAt time.Time
	if d.UpdatedAt != nil {
		updatedAt = *d.UpdatedAt
	}

	category := d.Category
	if category == "" {
		category = "general"
	}

	return &model.Document{
		Id:          d.Id,
		SourceURL:   d.SourceURL,
		Title:       d.Title,
		SourceType:  string(d.SourceType),
		Category:    category,
		PublishedAt: d.PublishedAt,
		RawText:     d.RawText,
		Incomplete:  d.Incomplete,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   updatedAt,
	}
}

func (m *DocumentMapper) ToEntities(docs []*model.Document) []*entity.Document {
	entities := make([]*entity.Document, len(docs))
	for i, d := range docs {
		entities[i] = m.ToEntity(d)
	}
	return entities
}
