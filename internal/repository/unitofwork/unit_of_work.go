package unitofwork

import (
	"context"

	"oncare-chatbot-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	DocumentRepository() contract.DocumentRepository
	ChunkRepository() contract.ChunkRepository
}
