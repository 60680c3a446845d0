package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BySourceURL matches the canonical source URL of a document
type BySourceURL struct {
	URL string
}

func (s BySourceURL) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("source_url = ?", s.URL)
}

type ByCategory struct {
	Category string
}

func (s ByCategory) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("category = ?", s.Category)
}

// IncompleteOnly returns documents whose last ingestion skipped malformed chunks
type IncompleteOnly struct{}

func (s IncompleteOnly) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("incomplete = ?", true)
}

// ByDocumentID filters chunks of one document
type ByDocumentID struct {
	DocumentID uuid.UUID
}

func (s ByDocumentID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("document_id = ?", s.DocumentID)
}
