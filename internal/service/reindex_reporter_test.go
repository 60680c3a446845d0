package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestReindexReporter_QueuesOncePerCooldown(t *testing.T) {
	docId := uuid.New()
	want, _ := json.Marshal(dto.PublishReindexMessage{DocumentId: docId})

	publisher := new(MockPublisherService)
	publisher.On("Publish", mock.Anything, want).Return(nil).Once()

	reporter := NewReindexReporter(publisher, time.Minute, logger.NewNopLogger())
	reporter.ReportInconsistency(context.Background(), docId)
	reporter.ReportInconsistency(context.Background(), docId)

	publisher.AssertExpectations(t)
}

func TestReindexReporter_RetriesAfterPublishFailure(t *testing.T) {
	docId := uuid.New()

	publisher := new(MockPublisherService)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("closed")).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	reporter := NewReindexReporter(publisher, time.Minute, logger.NewNopLogger())
	reporter.ReportInconsistency(context.Background(), docId)
	reporter.ReportInconsistency(context.Background(), docId)

	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestReindexReporter_SurvivesCancelledQuery(t *testing.T) {
	publisher := new(MockPublisherService)
	publisher.On("Publish", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewReindexReporter(publisher, time.Minute, logger.NewNopLogger()).ReportInconsistency(ctx, uuid.New())
	assert.True(t, publisher.AssertExpectations(t))
}
