package service

import (
	"context"
	"encoding/json"
	"time"

	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ReindexReporter queues a reindex for documents whose search hits failed to hydrate. Repeated
// reports for the same document inside the cooldown are dropped.
type ReindexReporter struct {
	publisher IPublisherService
	recent    *cache.Cache
	cooldown  time.Duration
	logger    logger.ILogger
}

func NewReindexReporter(publisher IPublisherService, cooldown time.Duration, logger logger.ILogger) *ReindexReporter {
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &ReindexReporter{
		publisher: publisher,
		recent:    cache.New(cooldown, 2*cooldown),
		cooldown:  cooldown,
		logger:    logger,
	}
}

func (r *ReindexReporter) ReportInconsistency(ctx context.Context, documentId uuid.UUID) {
	key := documentId.String()
	if err := r.recent.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}

	payload, err := json.Marshal(dto.PublishReindexMessage{DocumentId: documentId})
	if err != nil {
		return
	}
	// the query context may be cancelled right after the answer is sent
	if err := r.publisher.Publish(context.WithoutCancel(ctx), payload); err != nil {
		r.recent.Delete(key)
		r.logger.Error("ReindexReporter", "Failed to queue reindex", map[string]interface{}{
			"document_id": key,
			"error":       err.Error(),
		})
		return
	}
	r.logger.Warn("ReindexReporter", "Index inconsistency detected, reindex queued", map[string]interface{}{
		"document_id": key,
	})
}
