package entity

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimension is the fixed vector size of every stored chunk.
const EmbeddingDimension = 768

type ChunkMetadata struct {
	SourceURL      string     `json:"source_url"`
	Title          string     `json:"title"`
	SourceType     SourceType `json:"source_type"`
	Category       string     `json:"category,omitempty"`
	TimestampRange string     `json:"timestamp_range,omitempty"`
}

type Chunk struct {
	Id          uuid.UUID
	DocumentId  uuid.UUID
	Text        string
	Position    int
	TokenCount  int
	ContentHash string
	Embedding   []float32
	SearchTerms string
	PublishedAt time.Time
	Metadata    ChunkMetadata
	CreatedAt   time.Time
}

// HasProvenance reports whether the chunk can be traced back to its source.
func (c *Chunk) HasProvenance() bool {
	return c.Metadata.SourceURL != "" && c.Metadata.Title != ""
}

// UpsertStats summarises one Index.Upsert call for a single document.
// Refreshed counts kept chunks whose document metadata was rewritten; they
// are also counted in Moved or Unchanged.
type UpsertStats struct {
	DocumentId uuid.UUID
	Inserted   int
	Moved      int
	Unchanged  int
	Deleted    int
	Refreshed  int
}

func (s UpsertStats) Changed() bool {
	return s.Inserted > 0 || s.Moved > 0 || s.Deleted > 0 || s.Refreshed > 0
}
