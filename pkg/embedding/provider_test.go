package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"oncare-chatbot-be/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	calls  atomic.Int32
	errs   []error
	values []float32
}

func (p *scriptedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	n := int(p.calls.Add(1)) - 1
	if n < len(p.errs) && p.errs[n] != nil {
		return nil, p.errs[n]
	}
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: p.values}}, nil
}

func fastConfig(dim int) ResilientConfig {
	return ResilientConfig{
		Dimension:         dim,
		MaxConcurrency:    2,
		RequestsPerSecond: 1000,
		Burst:             100,
		MaxRetries:        3,
		InitialInterval:   time.Millisecond,
		MaxInterval:       2 * time.Millisecond,
	}
}

func TestResilientProvider_RetriesTransientFailures(t *testing.T) {
	next := &scriptedProvider{
		errs:   []error{&StatusError{Provider: "test", StatusCode: 503}, errors.New("connection reset")},
		values: make([]float32, 4),
	}
	p := NewResilientProvider(next, fastConfig(4))

	res, err := p.Generate(context.Background(), "독감", TaskTypeQuery)
	require.NoError(t, err)
	assert.Len(t, res.Embedding.Values, 4)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestResilientProvider_DoesNotRetryClientErrors(t *testing.T) {
	next := &scriptedProvider{
		errs: []error{&StatusError{Provider: "test", StatusCode: 400}},
	}
	p := NewResilientProvider(next, fastConfig(4))

	_, err := p.Generate(context.Background(), "독감", TaskTypeQuery)
	require.Error(t, err)
	assert.True(t, apperror.IsUpstreamError(err))
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestResilientProvider_GivesUpAfterMaxRetries(t *testing.T) {
	unavailable := &StatusError{Provider: "test", StatusCode: 503}
	next := &scriptedProvider{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	p := NewResilientProvider(next, fastConfig(4))

	_, err := p.Generate(context.Background(), "독감", TaskTypeQuery)
	assert.True(t, errors.Is(err, apperror.ErrEmbeddingFailed))
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestResilientProvider_RejectsWrongDimension(t *testing.T) {
	next := &scriptedProvider{values: make([]float32, 3)}
	p := NewResilientProvider(next, fastConfig(4))

	_, err := p.Generate(context.Background(), "독감", TaskTypeDocument)
	assert.True(t, errors.Is(err, apperror.ErrDimensionMismatch))
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestResilientProvider_HonoursCancellation(t *testing.T) {
	next := &scriptedProvider{values: make([]float32, 4)}
	p := NewResilientProvider(next, fastConfig(4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, "독감", TaskTypeQuery)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedProvider_ReusesEmbeddings(t *testing.T) {
	next := &scriptedProvider{values: []float32{1, 0}}
	p := NewCachedProvider(next, 2, time.Minute)
	ctx := context.Background()

	_, err := p.Generate(ctx, "독감", TaskTypeQuery)
	require.NoError(t, err)
	_, err = p.Generate(ctx, "독감", TaskTypeQuery)
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = p.Generate(ctx, "독감", TaskTypeDocument)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedProvider_RespectsCapacity(t *testing.T) {
	next := &scriptedProvider{values: []float32{1, 0}}
	p := NewCachedProvider(next, 1, time.Minute)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "b"} {
		_, err := p.Generate(ctx, q, TaskTypeQuery)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), next.calls.Load())
	assert.Equal(t, 1, p.cache.ItemCount())
}

func TestLexicalProvider_SharedTermsAreSimilar(t *testing.T) {
	p := NewLexicalProvider(16)
	ctx := context.Background()

	a, err := p.Generate(ctx, "독감 예방접종", TaskTypeDocument)
	require.NoError(t, err)
	b, err := p.Generate(ctx, "독감 예방접종은", TaskTypeQuery)
	require.NoError(t, err)
	c, err := p.Generate(ctx, "우주여행 보험", TaskTypeQuery)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, dot(a.Embedding.Values, b.Embedding.Values), 1e-6)
	assert.InDelta(t, 0.0, dot(a.Embedding.Values, c.Embedding.Values), 1e-6)
	assert.Len(t, c.Embedding.Values, 16)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, Normalize([]float32{3, 4}))
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
