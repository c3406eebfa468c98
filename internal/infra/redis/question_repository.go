package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"daily-quiz-bot/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// PoolLoader fetches a full question pool from a backing store (catalog
// files, Postgres).
type PoolLoader interface {
	LoadPool(ctx context.Context, language, category string) ([]domain.Question, error)
}

// QuestionRepository caches question pools in Redis and falls back to a
// loader on cache miss. Pools are stored as JSON arrays:
// SET quiz:questions:{language}:{category} [...]
type QuestionRepository struct {
	client *redis.Client
	loader PoolLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader PoolLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetQuestions returns a random sample of up to count questions.
func (r *QuestionRepository) GetQuestions(ctx context.Context, count int, language, category string) ([]domain.Question, error) {
	pool, err := r.pool(ctx, language, category)
	if err != nil {
		return nil, err
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return domain.Sample(pool, count, r.rnd), nil
}

func (r *QuestionRepository) pool(ctx context.Context, language, category string) ([]domain.Question, error) {
	key := r.poolKey(language, category)
	if pool, ok := r.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := r.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := r.loader.LoadPool(ctx, language, category)
		if err != nil {
			return nil, err
		}
		// Empty pools are not cached so newly imported questions show up.
		if len(pool) == 0 {
			return pool, nil
		}

		raw, err := json.Marshal(pool)
		if err != nil {
			return nil, err
		}
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("cache question pool %s: %v", key, err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read question pool %s: %v", key, err)
		}
		return nil, false
	}
	var pool []domain.Question
	if err := json.Unmarshal(raw, &pool); err != nil || len(pool) == 0 {
		return nil, false
	}
	return pool, true
}

func (r *QuestionRepository) poolKey(language, category string) string {
	return "quiz:questions:" + strings.ToLower(language) + ":" + strings.ToLower(category)
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
