package model

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SourceURL   string    `gorm:"column:source_url;type:text;not null;uniqueIndex"`
	Title       string    `gorm:"type:text;not null"`
	SourceType  string    `gorm:"type:varchar(16);not null"`
	Category    string    `gorm:"type:varchar(16);not null;default:'general';index"`
	PublishedAt time.Time `gorm:"index"`
	RawText     string    `gorm:"type:text"`
	Incomplete  bool      `gorm:"not null;default:false"`
	ChunkCount  int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`

	Chunks []Chunk `gorm:"foreignKey:DocumentId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (Document) TableName() string {
	return "documents"
}
