package service

import (
	"context"
	"encoding/json"
	"fmt"

	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/events"
	pktNats "oncare-chatbot-be/pkg/nats"
)

// EventSubscriber is satisfied by the NATS subscriber.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject string, durableName string, handler pktNats.EventHandler) error
}

// DocumentEventService turns DOCUMENT_SUBMITTED events from the scraper into ingest messages.
type DocumentEventService struct {
	subscriber EventSubscriber
	ingest     IPublisherService
	logger     logger.ILogger
}

func NewDocumentEventService(sub EventSubscriber, ingest IPublisherService, log logger.ILogger) *DocumentEventService {
	return &DocumentEventService{
		subscriber: sub,
		ingest:     ingest,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *DocumentEventService) Start(ctx context.Context) error {
	subject := pktNats.Subject(events.DocumentSubmitted)
	if err := s.subscriber.Subscribe(ctx, subject, "oncare-ingest-worker", s.HandleEvent); err != nil {
		s.logger.Error("DocumentEventService", "Failed to start document subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("DocumentEventService", fmt.Sprintf("Listening to %s", subject), nil)
	return nil
}

func (s *DocumentEventService) HandleEvent(ctx context.Context, event events.Event) error {
	sourceURL, _ := event.Payload()["source_url"].(string)
	if sourceURL == "" {
		s.logger.Warn("DocumentEventService", "Event without source_url ignored", map[string]interface{}{"type": event.EventType()})
		return nil
	}

	payload, err := json.Marshal(dto.PublishIngestMessage{SourceURL: sourceURL})
	if err != nil {
		return err
	}
	return s.ingest.Publish(ctx, payload)
}
