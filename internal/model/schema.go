package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates the extensions, tables and search indexes. It is safe to run repeatedly.
func Migrate(db *gorm.DB, hnswM, efConstruction int) error {
	setupSQL := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE EXTENSION IF NOT EXISTS vector;`,
	}
	for _, sql := range setupSQL {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.AutoMigrate(&Document{}, &Chunk{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	postMigrationSQL := []string{
		// 'simple' config: search_terms is already normalized by the ingestion pipeline
		`ALTER TABLE chunks ADD COLUMN IF NOT EXISTS search_vector tsvector
		 GENERATED ALWAYS AS (to_tsvector('simple', search_terms)) STORED;`,

		`CREATE INDEX IF NOT EXISTS idx_chunks_search_vector ON chunks USING GIN (search_vector);`,

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_chunks_embedding_hnsw ON chunks
		 USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`, hnswM, efConstruction),
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("post-migration: %w", err)
		}
	}
	return nil
}
