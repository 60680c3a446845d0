package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"oncare-chatbot-be/internal/entity"

	"github.com/patrickmn/go-cache"
)

// AnswerCacheRepository is the in-process answer cache used when Redis is not configured.
type AnswerCacheRepository struct {
	mu         sync.RWMutex
	generation int64
	cache      *cache.Cache
}

func NewAnswerCacheRepository(ttl time.Duration) *AnswerCacheRepository {
	// Purge expired items every minute
	c := cache.New(ttl, time.Minute)
	return &AnswerCacheRepository{
		cache: c,
	}
}

func (r *AnswerCacheRepository) Get(ctx context.Context, key string) (*entity.Answer, int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if x, found := r.cache.Get(entryKey(r.generation, key)); found {
		answer := *x.(*entity.Answer)
		return &answer, r.generation, true
	}
	return nil, r.generation, false
}

// Set drops answers read under a generation that has since been invalidated.
func (r *AnswerCacheRepository) Set(ctx context.Context, key string, generation int64, answer *entity.Answer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if generation != r.generation {
		return
	}
	stored := *answer
	r.cache.Set(entryKey(generation, key), &stored, cache.DefaultExpiration)
}

func (r *AnswerCacheRepository) Invalidate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.cache.Flush()
	return nil
}

func entryKey(generation int64, key string) string {
	return strconv.FormatInt(generation, 10) + ":" + key
}
