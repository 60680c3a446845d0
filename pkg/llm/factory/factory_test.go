package factory

import (
	"testing"

	"oncare-chatbot-be/pkg/llm/gemini"
	"oncare-chatbot-be/pkg/llm/huggingface"
	"oncare-chatbot-be/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	p, err := NewLLMProvider(ProviderConfig{Provider: "ollama", Model: "qwen2.5"})
	require.NoError(t, err)
	o, ok := p.(*ollama.OllamaProvider)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434", o.BaseURL)

	p, err = NewLLMProvider(ProviderConfig{Provider: "huggingface", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &huggingface.HuggingFaceProvider{}, p)

	p, err = NewLLMProvider(ProviderConfig{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &gemini.GeminiProvider{}, p)

	_, err = NewLLMProvider(ProviderConfig{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewLLMProvider(ProviderConfig{Provider: "unknown"})
	assert.Error(t, err)
}
