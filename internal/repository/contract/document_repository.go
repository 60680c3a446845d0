package contract

import (
	"context"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	// Upsert inserts or refreshes a document keyed by source_url and writes the stored id back.
	Upsert(ctx context.Context, doc *entity.Document) error
	UpdateIngestState(ctx context.Context, id uuid.UUID, chunkCount int, incomplete bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
