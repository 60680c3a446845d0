package scope

import "gorm.io/gorm"

// WithoutEmbedding skips the vector column when only text and provenance are needed
func WithoutEmbedding(db *gorm.DB) *gorm.DB {
	return db.Omit("embedding")
}

// WithoutRawText skips the full document body in listings
func WithoutRawText(db *gorm.DB) *gorm.DB {
	return db.Omit("raw_text")
}
