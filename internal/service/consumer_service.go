// FILE: internal/service/consumer_service.go
package service

import (
	"context"
	"encoding/json"

	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "ConsumerService"

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the in-process ingest and reindex topics.
type consumerService struct {
	subscriber   message.Subscriber
	ingestTopic  string
	reindexTopic string
	ingestion    IIngestionService
	logger       logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	ingestTopic string,
	reindexTopic string,
	ingestion IIngestionService,
	logger logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber:   subscriber,
		ingestTopic:  ingestTopic,
		reindexTopic: reindexTopic,
		ingestion:    ingestion,
		logger:       logger,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	ingestMessages, err := cs.subscriber.Subscribe(ctx, cs.ingestTopic)
	if err != nil {
		return err
	}
	reindexMessages, err := cs.subscriber.Subscribe(ctx, cs.reindexTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range ingestMessages {
			cs.processIngest(ctx, msg)
		}
	}()
	go func() {
		for msg := range reindexMessages {
			cs.processReindex(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processIngest(ctx context.Context, msg *message.Message) {
	var payload dto.PublishIngestMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.SourceURL == "" {
		cs.logger.Error(consumerModule, "Invalid ingest message", map[string]interface{}{"message_id": msg.UUID})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	res, err := cs.ingestion.IngestSource(ctx, payload.SourceURL)
	if err != nil {
		cs.settle(msg, err, map[string]interface{}{"source_url": payload.SourceURL})
		return
	}

	cs.logger.Info(consumerModule, "Ingest message processed", map[string]interface{}{
		"source_url":  payload.SourceURL,
		"document_id": res.Document.Id.String(),
		"incomplete":  res.Incomplete,
	})
	msg.Ack()
}

func (cs *consumerService) processReindex(ctx context.Context, msg *message.Message) {
	var payload dto.PublishReindexMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Invalid reindex message", map[string]interface{}{"message_id": msg.UUID})
		msg.Ack()
		return
	}

	if err := cs.ingestion.Reindex(ctx, payload.DocumentId); err != nil {
		cs.settle(msg, err, map[string]interface{}{"document_id": payload.DocumentId.String()})
		return
	}
	msg.Ack()
}

// settle Nacks upstream failures for redelivery and Acks everything else.
func (cs *consumerService) settle(msg *message.Message, err error, details map[string]interface{}) {
	details["error"] = err.Error()
	if apperror.IsUpstreamError(err) {
		cs.logger.Warn(consumerModule, "Message failed, will be redelivered", details)
		msg.Nack()
		return
	}
	cs.logger.Error(consumerModule, "Message failed permanently", details)
	msg.Ack()
}
