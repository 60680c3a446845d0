package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oncare-chatbot-be/pkg/apperror"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type ResilientConfig struct {
	Dimension         int
	MaxConcurrency    int64
	RequestsPerSecond float64
	Burst             int
	MaxRetries        uint
	InitialInterval   time.Duration
	MaxInterval       time.Duration
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Dimension:         768,
		MaxConcurrency:    4,
		RequestsPerSecond: 10,
		Burst:             4,
		MaxRetries:        4,
		InitialInterval:   200 * time.Millisecond,
		MaxInterval:       5 * time.Second,
	}
}

// ResilientProvider decorates a provider with bounded concurrency, client-side throttling,
// retry with exponential backoff and dimension validation.
type ResilientProvider struct {
	next    EmbeddingProvider
	cfg     ResilientConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

var _ EmbeddingProvider = (*ResilientProvider)(nil)

func NewResilientProvider(next EmbeddingProvider, cfg ResilientConfig) *ResilientProvider {
	def := DefaultResilientConfig()
	if cfg.Dimension <= 0 {
		cfg.Dimension = def.Dimension
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	return &ResilientProvider{
		next:    next,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

func (p *ResilientProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	operation := func() (*EmbeddingResponse, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		res, err := p.next.Generate(ctx, text, taskType)
		if err != nil {
			if !isRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if got := len(res.Embedding.Values); got != p.cfg.Dimension {
			return nil, backoff.Permanent(apperror.ErrDimensionMismatch.
				WithDetail("expected", p.cfg.Dimension).
				WithDetail("got", got))
		}
		return res, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.cfg.MaxRetries),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, apperror.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, apperror.ErrEmbeddingFailed.Wrap(fmt.Errorf("after %d tries: %w", p.cfg.MaxRetries, err))
	}
	return res, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	// transport errors (connection refused, reset, timeouts) are treated as transient
	return true
}
