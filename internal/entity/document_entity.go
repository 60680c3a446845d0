package entity

import (
	"time"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourceTypeVideo SourceType = "video"
	SourceTypeBlog  SourceType = "blog"
)

func (s SourceType) Valid() bool {
	return s == SourceTypeVideo || s == SourceTypeBlog
}

// Document is a cleaned, hospital-authored source. Re-ingesting the same SourceURL
// keeps its Id and replaces its chunks.
type Document struct {
	Id          uuid.UUID
	SourceURL   string
	Title       string
	SourceType  SourceType
	Category    string
	PublishedAt time.Time
	RawText     string
	Incomplete  bool
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// DocumentFilter narrows an admin document listing. Zero values mean "any".
type DocumentFilter struct {
	Category       string
	IncompleteOnly bool
	Limit          int
	Offset         int
}
