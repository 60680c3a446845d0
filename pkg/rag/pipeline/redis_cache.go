package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oncare-chatbot-be/internal/entity"

	"github.com/redis/go-redis/v9"
)

const DefaultAnswerCacheTTL = 300 * time.Second

// RedisAnswerCache keys entries under a generation number. Invalidate bumps the generation so
// older entries are never read again and expire on their own.
type RedisAnswerCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type cachedAnswer struct {
	Text      string            `json:"text"`
	Citations []entity.Citation `json:"citations"`
	Abstained bool              `json:"abstained"`
}

func NewRedisAnswerCache(client *redis.Client, prefix string, ttl time.Duration) *RedisAnswerCache {
	if prefix == "" {
		prefix = "oncare:answer"
	}
	if ttl <= 0 {
		ttl = DefaultAnswerCacheTTL
	}
	return &RedisAnswerCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisAnswerCache) generationKey() string {
	return c.prefix + ":generation"
}

func (c *RedisAnswerCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return -1, err
	}
	return gen, nil
}

func (c *RedisAnswerCache) entryKey(generation int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, generation, key)
}

// Get treats every Redis failure as a miss. When the generation cannot be read it is reported
// as -1 so the answer is not stored either.
func (c *RedisAnswerCache) Get(ctx context.Context, key string) (*entity.Answer, int64, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, -1, false
	}
	raw, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if err != nil {
		return nil, gen, false
	}
	var cached cachedAnswer
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, gen, false
	}
	return &entity.Answer{
		Text:      cached.Text,
		Citations: cached.Citations,
		Abstained: cached.Abstained,
	}, gen, true
}

// Set writes under the generation the caller read. After an Invalidate that key is never read
// again and expires with the TTL.
func (c *RedisAnswerCache) Set(ctx context.Context, key string, generation int64, answer *entity.Answer) {
	if generation < 0 {
		return
	}
	raw, err := json.Marshal(cachedAnswer{
		Text:      answer.Text,
		Citations: answer.Citations,
		Abstained: answer.Abstained,
	})
	if err != nil {
		return
	}
	c.client.Set(ctx, c.entryKey(generation, key), raw, c.ttl)
}

func (c *RedisAnswerCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.generationKey()).Err()
}
