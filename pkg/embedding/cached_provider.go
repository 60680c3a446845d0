package embedding

import (
	"context"
	"time"

	"oncare-chatbot-be/pkg/hashing"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoizes embeddings of identical (taskType, text) pairs. Only query
// embeddings are routed through it; document embeddings are computed once per content hash.
type CachedProvider struct {
	next     EmbeddingProvider
	cache    *cache.Cache
	maxItems int
}

var _ EmbeddingProvider = (*CachedProvider)(nil)

func NewCachedProvider(next EmbeddingProvider, maxItems int, ttl time.Duration) *CachedProvider {
	if maxItems <= 0 {
		maxItems = 256
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedProvider{
		next:     next,
		cache:    cache.New(ttl, 10*time.Minute),
		maxItems: maxItems,
	}
}

func (p *CachedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	key := hashing.SumString(taskType + "\x00" + text)
	if x, found := p.cache.Get(key); found {
		return x.(*EmbeddingResponse), nil
	}

	res, err := p.next.Generate(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	// go-cache has no size bound; drop expired entries first and skip caching when still full.
	if p.cache.ItemCount() >= p.maxItems {
		p.cache.DeleteExpired()
	}
	if p.cache.ItemCount() < p.maxItems {
		p.cache.Set(key, res, cache.DefaultExpiration)
	}
	return res, nil
}
