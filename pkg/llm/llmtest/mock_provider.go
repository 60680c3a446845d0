// Package llmtest provides a testify mock of llm.LLMProvider for package tests.
package llmtest

import (
	"context"

	"oncare-chatbot-be/pkg/llm"

	"github.com/stretchr/testify/mock"
)

// MockLLMProvider is a mock implementation of llm.LLMProvider
type MockLLMProvider struct {
	mock.Mock
}

var _ llm.LLMProvider = (*MockLLMProvider)(nil)

func (m *MockLLMProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	args := m.Called(ctx, history)
	return args.String(0), args.Error(1)
}

func (m *MockLLMProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}
