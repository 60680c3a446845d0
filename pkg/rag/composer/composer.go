// FILE: pkg/rag/composer/composer.go
// PURPOSE: Turn a question and ranked chunks into a cited answer

package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/llm"
)

const module = "composer"

type Config struct {
	MaxContextChars int
	Timeout         time.Duration
	Temperature     float64
}

func DefaultConfig() Config {
	return Config{
		MaxContextChars: 6000,
		Timeout:         30 * time.Second,
		Temperature:     0.3,
	}
}

type AnswerComposer struct {
	provider llm.LLMProvider
	cfg      Config
	logger   logger.ILogger
}

func NewAnswerComposer(provider llm.LLMProvider, cfg Config, logger logger.ILogger) *AnswerComposer {
	defaults := DefaultConfig()
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = defaults.MaxContextChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &AnswerComposer{provider: provider, cfg: cfg, logger: logger}
}

type modelReply struct {
	Answer      string   `json:"answer"`
	UsedSources []string `json:"used_sources"`
}

// Compose asks the model for an answer grounded in result. An unusable reply is retried once
// with a stricter prompt; a second failure is an upstream error.
func (c *AnswerComposer) Compose(ctx context.Context, query, category string, history []entity.HistoryMessage, result entity.RetrievalResult) (*entity.Answer, error) {
	if len(result) == 0 {
		return nil, apperror.ErrInvalidInput.Wrap(errors.New("compose called without retrieved chunks"))
	}
	sources := selectSources(result, c.cfg.MaxContextChars)

	reply, err := c.attempt(ctx, query, category, history, sources, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn(module, "Model reply unusable, retrying with strict prompt", map[string]interface{}{
			"error": err.Error(),
		})
		reply, err = c.attempt(ctx, query, category, history, sources, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperror.ErrModelFailed.Wrap(err)
		}
	}

	return &entity.Answer{
		Text:      strings.TrimSpace(reply.Answer) + "\n\n" + constant.MedicalDisclaimer,
		Citations: citations(sources, reply.UsedSources),
	}, nil
}

func (c *AnswerComposer) attempt(ctx context.Context, query, category string, history []entity.HistoryMessage, sources []source, strict bool) (*modelReply, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	messages := newPromptBuilder(query, category, history, sources, strict).Build()
	raw, err := c.provider.Chat(callCtx, messages, llm.WithTemperature(c.cfg.Temperature), llm.WithJSONMode())
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("model call timed out after %s: %w", c.cfg.Timeout, err)
		}
		return nil, err
	}

	var reply modelReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}
	if strings.TrimSpace(reply.Answer) == "" {
		return nil, errors.New("model reply has empty answer")
	}
	return &reply, nil
}

// citations maps the tags the model used back to sources, deduplicated by source_url and ordered
// by chunk rank. When no valid tag is given every supplied source is cited.
func citations(sources []source, used []string) []entity.Citation {
	byTag := make(map[string]source, len(sources))
	for _, s := range sources {
		byTag[s.tag] = s
	}

	picked := make(map[int]bool)
	for _, tag := range used {
		if s, ok := byTag[normalizeTag(tag)]; ok {
			picked[s.rank] = true
		}
	}

	seen := make(map[string]bool)
	var out []entity.Citation
	for _, s := range sources {
		if len(picked) > 0 && !picked[s.rank] {
			continue
		}
		url := s.chunk.Metadata.SourceURL
		if seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, entity.Citation{SourceURL: url, Title: s.chunk.Metadata.Title})
	}
	return out
}

func normalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.Trim(tag, "[]")
	return strings.ToUpper(tag)
}
