// FILE: pkg/rag/pipeline/pipeline.go
// PURPOSE: Read path state machine: guardrail, retrieval, confidence gate, composition

package pipeline

import (
	"context"
	"strings"
	"time"

	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/hashing"
	"oncare-chatbot-be/pkg/lexical"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "pipeline"

type State string

const (
	StateReceived         State = "RECEIVED"
	StateGuardrailChecked State = "GUARDRAIL_CHECKED"
	StateBlocked          State = "BLOCKED"
	StateRetrieved        State = "RETRIEVED"
	StateAbstained        State = "ABSTAINED"
	StateComposed         State = "COMPOSED"
	StateDone             State = "DONE"
)

type Guardrail interface {
	Classify(ctx context.Context, query string) (entity.GuardrailVerdict, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (entity.RetrievalResult, error)
}

type Gate interface {
	Evaluate(result entity.RetrievalResult) bool
}

type Composer interface {
	Compose(ctx context.Context, query, category string, history []entity.HistoryMessage, result entity.RetrievalResult) (*entity.Answer, error)
}

// AnswerCache stores finished answers for history-free questions. Get also reports the cache
// generation it read from; Set stores under that generation, so an answer computed before an
// Invalidate is never served after it. A negative generation means unknown and Set skips it.
type AnswerCache interface {
	Get(ctx context.Context, key string) (answer *entity.Answer, generation int64, found bool)
	Set(ctx context.Context, key string, generation int64, answer *entity.Answer)
	Invalidate(ctx context.Context) error
}

// Request is one question. Category is cancer, nerve or general; empty or "auto" classifies the
// question by its keywords.
type Request struct {
	Question string
	Category string
	History  []entity.HistoryMessage
}

// Outcome is the answer plus the states it went through and the category it was answered under.
type Outcome struct {
	Answer   *entity.Answer
	States   []State
	Cached   bool
	Category string
}

type Pipeline struct {
	guardrail Guardrail
	retriever Retriever
	gate      Gate
	composer  Composer
	cache     AnswerCache
	topK      int
	logger    logger.ILogger
	tracer    trace.Tracer
}

func NewPipeline(
	guardrail Guardrail,
	retriever Retriever,
	gate Gate,
	composer Composer,
	cache AnswerCache,
	topK int,
	logger logger.ILogger,
) *Pipeline {
	return &Pipeline{
		guardrail: guardrail,
		retriever: retriever,
		gate:      gate,
		composer:  composer,
		cache:     cache,
		topK:      topK,
		logger:    logger,
		tracer:    otel.Tracer("oncare-chatbot-be/pipeline"),
	}
}

// Run answers one question. Blocked and abstained questions are outcomes, not errors; errors are
// only returned for invalid input, cancellation and upstream failures.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, apperror.ErrEmptyQuestion
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()
	start := time.Now()

	out := &Outcome{States: []State{StateReceived}, Category: lexical.ResolveCategory(req.Category, question)}
	finish := func(answer *entity.Answer, state State) (*Outcome, error) {
		out.Answer = answer
		out.States = append(out.States, state, StateDone)
		span.SetAttributes(attribute.String("pipeline.outcome", string(state)))
		p.logger.Info(module, "Question handled", map[string]interface{}{
			"question_length": len([]rune(question)),
			"outcome":         string(state),
			"citations":       len(answer.Citations),
			"cached":          out.Cached,
			"category":        out.Category,
			"duration_ms":     time.Since(start).Milliseconds(),
		})
		return out, nil
	}
	fail := func(err error) (*Outcome, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		p.logger.Error(module, "Question failed", map[string]interface{}{
			"question_length": len([]rune(question)),
			"error":           err.Error(),
			"states":          out.States,
		})
		return nil, err
	}

	verdict, err := p.classify(ctx, question)
	if err != nil {
		return fail(err)
	}
	out.States = append(out.States, StateGuardrailChecked)
	if verdict.Blocked {
		return finish(&entity.Answer{
			Text:               verdict.StandardResponse,
			Citations:          []entity.Citation{},
			GuardrailTriggered: true,
		}, StateBlocked)
	}

	entry := cacheEntry{generation: -1}
	if p.cache != nil && len(req.History) == 0 {
		entry.key = hashing.SumString(out.Category + "\n" + strings.Join(strings.Fields(question), " "))
		cached, generation, ok := p.cache.Get(ctx, entry.key)
		entry.generation = generation
		if ok {
			out.Cached = true
			state := StateComposed
			if cached.Abstained {
				state = StateAbstained
			}
			out.States = append(out.States, StateRetrieved)
			return finish(cached, state)
		}
	}

	result, err := p.retrieve(ctx, question)
	if err != nil {
		return fail(err)
	}
	result = scopeToCategory(result, out.Category)
	out.States = append(out.States, StateRetrieved)

	if !p.gate.Evaluate(result) {
		answer := &entity.Answer{
			Text:      constant.AbstentionMessage,
			Citations: []entity.Citation{},
			Abstained: true,
		}
		p.remember(ctx, entry, answer)
		return finish(answer, StateAbstained)
	}

	answer, err := p.compose(ctx, question, out.Category, req.History, result)
	if err != nil {
		return fail(err)
	}
	p.remember(ctx, entry, answer)
	return finish(answer, StateComposed)
}

func (p *Pipeline) classify(ctx context.Context, question string) (entity.GuardrailVerdict, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.guardrail")
	defer span.End()

	verdict, err := p.guardrail.Classify(ctx, question)
	if err != nil {
		span.RecordError(err)
		return verdict, err
	}
	span.SetAttributes(
		attribute.Bool("guardrail.blocked", verdict.Blocked),
		attribute.String("guardrail.reason", string(verdict.Reason)),
	)
	return verdict, nil
}

func (p *Pipeline) retrieve(ctx context.Context, question string) (entity.RetrievalResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()

	result, err := p.retriever.Retrieve(ctx, question, p.topK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("retrieval.count", len(result)),
		attribute.Float64("retrieval.top_score", result.TopScore()),
	)
	return result, nil
}

func (p *Pipeline) compose(ctx context.Context, question, category string, history []entity.HistoryMessage, result entity.RetrievalResult) (*entity.Answer, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.compose")
	defer span.End()

	answer, err := p.composer.Compose(ctx, question, category, history, result)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("answer.citations", len(answer.Citations)))
	return answer, nil
}

// scopeToCategory drops chunks from the other specialty, keeping the rank order.
func scopeToCategory(result entity.RetrievalResult, category string) entity.RetrievalResult {
	kept := result[:0:0]
	for _, rc := range result {
		if lexical.BelongsElsewhere(category, rc.Chunk.Metadata.Category, rc.Chunk.Metadata.Title) {
			continue
		}
		kept = append(kept, rc)
	}
	return kept
}

type cacheEntry struct {
	key        string
	generation int64
}

func (p *Pipeline) remember(ctx context.Context, entry cacheEntry, answer *entity.Answer) {
	if entry.key == "" || entry.generation < 0 {
		return
	}
	p.cache.Set(ctx, entry.key, entry.generation, answer)
}

// InvalidateCache drops every cached answer; called after the index changes.
func (p *Pipeline) InvalidateCache(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Invalidate(ctx)
}
