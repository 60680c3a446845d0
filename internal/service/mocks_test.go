package service

import (
	"context"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/rag/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) IngestDocuments(ctx context.Context, docs []*entity.Document) ([]*IngestResult, error) {
	args := m.Called(ctx, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*IngestResult), args.Error(1)
}

func (m *MockIngestionService) IngestDocument(ctx context.Context, doc *entity.Document) (*IngestResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*IngestResult), args.Error(1)
}

func (m *MockIngestionService) IngestSource(ctx context.Context, sourceURL string) (*IngestResult, error) {
	args := m.Called(ctx, sourceURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*IngestResult), args.Error(1)
}

func (m *MockIngestionService) Reindex(ctx context.Context, documentId uuid.UUID) error {
	return m.Called(ctx, documentId).Error(0)
}

func (m *MockIngestionService) DeleteDocument(ctx context.Context, documentId uuid.UUID) error {
	return m.Called(ctx, documentId).Error(0)
}

func (m *MockIngestionService) ListDocuments(ctx context.Context, filter entity.DocumentFilter) ([]*entity.Document, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entity.Document), args.Get(1).(int64), args.Error(2)
}

type MockPublisherService struct {
	mock.Mock
}

func (m *MockPublisherService) Publish(ctx context.Context, payload []byte) error {
	return m.Called(ctx, payload).Error(0)
}

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Outcome), args.Error(1)
}
