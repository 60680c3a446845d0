package guardrail

import (
	"context"
	"fmt"

	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/llm"
)

// LLMChecker asks a language model to categorize the question.
type LLMChecker struct {
	provider llm.LLMProvider
}

func NewLLMChecker(provider llm.LLMProvider) *LLMChecker {
	return &LLMChecker{provider: provider}
}

func (c *LLMChecker) Check(ctx context.Context, query string) (entity.GuardrailReason, error) {
	raw, err := c.provider.Generate(ctx, fmt.Sprintf(constant.GuardrailModelPromptV1, query), llm.WithTemperature(0), llm.WithJSONMode())
	if err != nil {
		return "", apperror.ErrModelFailed.Wrap(err)
	}

	var reply struct {
		Category string `json:"category"`
	}
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return "", apperror.ErrModelFailed.Wrap(err)
	}

	switch reason := entity.GuardrailReason(reply.Category); reason {
	case entity.GuardrailReasonNone, entity.GuardrailReasonDiagnosis,
		entity.GuardrailReasonPrescription, entity.GuardrailReasonTreatmentDecision:
		return reason, nil
	default:
		return "", apperror.ErrModelFailed.Wrap(fmt.Errorf("unknown category %q", reply.Category))
	}
}
