package dto

import (
	"time"

	"oncare-chatbot-be/internal/entity"

	"github.com/google/uuid"
)

type DocumentDTO struct {
	SourceURL   string    `json:"source_url" validate:"required,url"`
	Title       string    `json:"title" validate:"required"`
	SourceType  string    `json:"source_type" validate:"required,oneof=video blog"`
	Category    string    `json:"category,omitempty" validate:"omitempty,oneof=cancer nerve general"`
	PublishedAt time.Time `json:"published_at"`
	RawText     string    `json:"raw_text" validate:"required"`
}

func (d DocumentDTO) ToEntity() *entity.Document {
	return &entity.Document{
		SourceURL:   d.SourceURL,
		Title:       d.Title,
		SourceType:  entity.SourceType(d.SourceType),
		Category:    d.Category,
		PublishedAt: d.PublishedAt,
		RawText:     d.RawText,
	}
}

type IngestDocumentsRequest struct {
	Documents []DocumentDTO `json:"documents" validate:"required,min=1,max=100,dive"`
}

type IngestSourceRequest struct {
	SourceURL string `json:"source_url" validate:"required,url"`
}

type IngestResultDTO struct {
	DocumentId uuid.UUID `json:"document_id"`
	SourceURL  string    `json:"source_url"`
	Inserted   int       `json:"inserted"`
	Moved      int       `json:"moved"`
	Unchanged  int       `json:"unchanged"`
	Deleted    int       `json:"deleted"`
	Refreshed  int       `json:"refreshed"`
	Incomplete bool      `json:"incomplete"`
	Error      string    `json:"error,omitempty"`
}

type IngestResponse struct {
	Results []IngestResultDTO `json:"results"`
}

// PublishIngestMessage is the watermill payload on the ingest topic.
type PublishIngestMessage struct {
	SourceURL string `json:"source_url"`
}

// PublishReindexMessage is the watermill payload on the reindex topic.
type PublishReindexMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
}

type ListDocumentsQuery struct {
	Category   string `query:"category" validate:"omitempty,oneof=cancer nerve general"`
	Incomplete bool   `query:"incomplete"`
	Limit      int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset     int    `query:"offset" validate:"omitempty,min=0"`
}

type DocumentSummaryDTO struct {
	Id          uuid.UUID  `json:"id"`
	SourceURL   string     `json:"source_url"`
	Title       string     `json:"title"`
	SourceType  string     `json:"source_type"`
	Category    string     `json:"category"`
	PublishedAt time.Time  `json:"published_at"`
	ChunkCount  int        `json:"chunk_count"`
	Incomplete  bool       `json:"incomplete"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type ListDocumentsResponse struct {
	Documents []DocumentSummaryDTO `json:"documents"`
	Total     int64                `json:"total"`
}

func NewDocumentSummaryDTO(d *entity.Document) DocumentSummaryDTO {
	return DocumentSummaryDTO{
		Id:          d.Id,
		SourceURL:   d.SourceURL,
		Title:       d.Title,
		SourceType:  string(d.SourceType),
		Category:    d.Category,
		PublishedAt: d.PublishedAt,
		ChunkCount:  d.ChunkCount,
		Incomplete:  d.Incomplete,
		UpdatedAt:   d.UpdatedAt,
	}
}
