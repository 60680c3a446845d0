package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Chunk is a retrievable unit. search_vector (tsvector over search_terms) and the HNSW index on
// embedding are created by cmd/migrate, not AutoMigrate.
type Chunk struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_chunks_document_hash,priority:1;index:idx_chunks_document_position,priority:1"`
	Text           string          `gorm:"type:text;not null"`
	Position       int             `gorm:"not null;index:idx_chunks_document_position,priority:2"`
	TokenCount     int             `gorm:"not null;default:0"`
	ContentHash    string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_chunks_document_hash,priority:2"`
	Embedding      pgvector.Vector `gorm:"type:vector(768);not null"`
	SearchTerms    string          `gorm:"type:text;not null;default:''"`
	SourceURL      string          `gorm:"column:source_url;type:text;not null"`
	Title          string          `gorm:"type:text;not null"`
	SourceType     string          `gorm:"type:varchar(16);not null"`
	PublishedAt    time.Time       `gorm:"index"`
	TimestampRange *string         `gorm:"type:varchar(32)"`
	Metadata       datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

func (Chunk) TableName() string {
	return "chunks"
}
