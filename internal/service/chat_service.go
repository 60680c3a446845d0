package service

import (
	"context"

	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/events"
	"oncare-chatbot-be/pkg/rag/pipeline"
)

// Answerer runs the read path. Implemented by pipeline.Pipeline.
type Answerer interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// Pinger reports whether the index is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type IChatService interface {
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
	Health(ctx context.Context) error
}

const chatModule = "ChatService"

type chatService struct {
	answerer  Answerer
	index     Pinger
	publisher EventPublisher
	logger    logger.ILogger
}

func NewChatService(answerer Answerer, index Pinger, publisher EventPublisher, logger logger.ILogger) IChatService {
	return &chatService{
		answerer:  answerer,
		index:     index,
		publisher: publisher,
		logger:    logger,
	}
}

func (c *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	history := make([]entity.HistoryMessage, 0, len(req.History))
	for _, h := range req.History {
		history = append(history, entity.HistoryMessage{Role: h.Role, Content: h.Content})
	}

	out, err := c.answerer.Run(ctx, pipeline.Request{
		Question: req.Question,
		Category: req.Category,
		History:  pipeline.SanitizeHistory(history),
	})
	if err != nil {
		return nil, err
	}

	if c.publisher != nil {
		// outcome only, the question itself never leaves the service
		evt := events.New(events.QueryAnswered, map[string]interface{}{
			"outcome":   string(out.States[len(out.States)-2]),
			"citations": len(out.Answer.Citations),
			"cached":    out.Cached,
			"category":  out.Category,
		})
		if err := c.publisher.Publish(ctx, evt); err != nil {
			c.logger.Warn(chatModule, "Failed to publish query event", map[string]interface{}{
				"event": evt.EventType(),
				"error": err.Error(),
			})
		}
	}

	res := toChatResponse(out.Answer)
	res.Category = out.Category
	return res, nil
}

func (c *chatService) Health(ctx context.Context) error {
	if c.index == nil {
		return apperror.ErrStorageUnavailable
	}
	return c.index.Ping(ctx)
}

func toChatResponse(answer *entity.Answer) *dto.ChatResponse {
	citations := make([]dto.CitationDTO, 0, len(answer.Citations))
	for _, ct := range answer.Citations {
		citations = append(citations, dto.CitationDTO{SourceURL: ct.SourceURL, Title: ct.Title})
	}
	return &dto.ChatResponse{
		Answer:             answer.Text,
		Citations:          citations,
		Abstained:          answer.Abstained,
		GuardrailTriggered: answer.GuardrailTriggered,
	}
}
