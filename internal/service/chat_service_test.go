package service

import (
	"context"
	"errors"
	"testing"

	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/events"
	"oncare-chatbot-be/pkg/rag/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChatService_Chat(t *testing.T) {
	answerer := new(MockAnswerer)
	answerer.On("Run", mock.Anything, mock.MatchedBy(func(req pipeline.Request) bool {
		return req.Question == "독감 예방접종 시기" &&
			req.Category == "auto" &&
			len(req.History) == 1 &&
			req.History[0].Role == constant.ChatMessageRoleUser
	})).Return(&pipeline.Outcome{
		Answer: &entity.Answer{
			Text:      "10월입니다.",
			Citations: []entity.Citation{{SourceURL: "https://oncare.example/blog/flu", Title: "독감"}},
		},
		States:   []pipeline.State{pipeline.StateReceived, pipeline.StateGuardrailChecked, pipeline.StateRetrieved, pipeline.StateComposed, pipeline.StateDone},
		Category: "general",
	}, nil)

	publisher := &recordingPublisher{}
	svc := NewChatService(answerer, nil, publisher, logger.NewNopLogger())

	res, err := svc.Chat(context.Background(), &dto.ChatRequest{
		Question: "독감 예방접종 시기",
		Category: "auto",
		History:  []dto.HistoryMessageDTO{{Role: "doctor", Content: "안녕하세요"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "10월입니다.", res.Answer)
	assert.Equal(t, []dto.CitationDTO{{SourceURL: "https://oncare.example/blog/flu", Title: "독감"}}, res.Citations)
	assert.False(t, res.Abstained)
	assert.Equal(t, "general", res.Category)
	require.Equal(t, []string{events.QueryAnswered}, publisher.types())
	assert.Equal(t, "COMPOSED", publisher.events[0].Payload()["outcome"])
	assert.NotContains(t, publisher.events[0].Payload(), "question")
}

func TestChatService_AbstentionHasEmptyCitationList(t *testing.T) {
	answerer := new(MockAnswerer)
	answerer.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Outcome{
		Answer: &entity.Answer{Text: constant.AbstentionMessage, Abstained: true},
		States: []pipeline.State{pipeline.StateReceived, pipeline.StateGuardrailChecked, pipeline.StateRetrieved, pipeline.StateAbstained, pipeline.StateDone},
	}, nil)

	res, err := NewChatService(answerer, nil, nil, logger.NewNopLogger()).Chat(context.Background(), &dto.ChatRequest{Question: "우주여행 보험"})
	require.NoError(t, err)
	assert.True(t, res.Abstained)
	assert.NotNil(t, res.Citations)
	assert.Empty(t, res.Citations)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event events.Event) error {
	return errors.New("broker unavailable")
}

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(module, message string, details map[string]interface{}) {
	m.Called(module, message, details)
}

func (m *MockLogger) Info(module, message string, details map[string]interface{}) {
	m.Called(module, message, details)
}

func (m *MockLogger) Warn(module, message string, details map[string]interface{}) {
	m.Called(module, message, details)
}

func (m *MockLogger) Error(module, message string, details map[string]interface{}) {
	m.Called(module, message, details)
}

func (m *MockLogger) Sync() error {
	return nil
}

func TestChatService_PublishFailureIsLoggedNotReturned(t *testing.T) {
	answerer := new(MockAnswerer)
	answerer.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Outcome{
		Answer: &entity.Answer{Text: constant.AbstentionMessage, Abstained: true},
		States: []pipeline.State{pipeline.StateReceived, pipeline.StateGuardrailChecked, pipeline.StateRetrieved, pipeline.StateAbstained, pipeline.StateDone},
	}, nil)

	log := new(MockLogger)
	log.On("Warn", chatModule, "Failed to publish query event", mock.MatchedBy(func(details map[string]interface{}) bool {
		return details["event"] == events.QueryAnswered && details["error"] == "broker unavailable"
	})).Once()

	res, err := NewChatService(answerer, nil, failingPublisher{}, log).Chat(context.Background(), &dto.ChatRequest{Question: "우주여행 보험"})
	require.NoError(t, err)
	assert.True(t, res.Abstained)
	log.AssertExpectations(t)
}

func TestChatService_HealthWithoutIndex(t *testing.T) {
	err := NewChatService(new(MockAnswerer), nil, nil, logger.NewNopLogger()).Health(context.Background())
	assert.True(t, apperror.IsUpstreamError(err))
}
