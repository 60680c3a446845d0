package embedding

import (
	"context"
	"hash/fnv"
	"sync"

	"oncare-chatbot-be/pkg/lexical"
)

// LexicalProvider is a deterministic bag-of-words embedder for offline development and tests.
// Terms get their own dimension in first-seen order until the space is exhausted, then fall back
// to hashing. Vectors are only comparable within one process, so it pairs with the memory index.
type LexicalProvider struct {
	dimension int
	mu        sync.Mutex
	vocab     map[string]int
}

var _ EmbeddingProvider = (*LexicalProvider)(nil)

func NewLexicalProvider(dimension int) *LexicalProvider {
	if dimension <= 0 {
		dimension = 768
	}
	return &LexicalProvider{dimension: dimension, vocab: make(map[string]int)}
}

func (p *LexicalProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values := make([]float32, p.dimension)
	for _, term := range lexical.Tokenize(text) {
		values[p.slot(term)]++
	}
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: Normalize(values)}}, nil
}

func (p *LexicalProvider) slot(term string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.vocab[term]; ok {
		return idx
	}
	idx := len(p.vocab)
	if idx >= p.dimension {
		h := fnv.New32a()
		h.Write([]byte(term))
		idx = int(h.Sum32() % uint32(p.dimension))
	}
	p.vocab[term] = idx
	return idx
}
