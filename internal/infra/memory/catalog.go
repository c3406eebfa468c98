package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"daily-quiz-bot/internal/domain"
)

// Catalog is an in-memory question catalog keyed by language and category.
type Catalog struct {
	pools map[string][]domain.Question

	mu  sync.Mutex
	rnd *rand.Rand
}

// PoolKey is the cache/catalog key of a language and category.
func PoolKey(language, category string) string {
	return strings.ToLower(language) + "/" + strings.ToLower(category)
}

// NewCatalog builds a catalog from pools keyed by PoolKey. Records are
// de-duplicated by id and malformed ones dropped.
func NewCatalog(pools map[string][]domain.Question) *Catalog {
	c := &Catalog{
		pools: make(map[string][]domain.Question, len(pools)),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for key, raw := range pools {
		kept, dropped := domain.Dedupe(raw)
		if dropped > 0 {
			log.Printf("catalog %s: dropped %d malformed questions", key, dropped)
		}
		c.pools[key] = kept
	}
	return c
}

// LoadCatalogDir reads every <language>_<category>.json file in dir. Each
// file holds a JSON array of questions.
func LoadCatalogDir(dir string) (*Catalog, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	pools := make(map[string][]domain.Question)
	for _, path := range paths {
		base := strings.TrimSuffix(filepath.Base(path), ".json")
		lang, cat, ok := strings.Cut(base, "_")
		if !ok {
			log.Printf("catalog: skipping %s, expected <language>_<category>.json", path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var questions []domain.Question
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		key := PoolKey(lang, cat)
		pools[key] = append(pools[key], questions...)
		log.Printf("catalog: loaded %d questions from %s", len(questions), filepath.Base(path))
	}
	return NewCatalog(pools), nil
}

// LoadPool returns a copy of the pool; unknown pools are empty.
func (c *Catalog) LoadPool(_ context.Context, language, category string) ([]domain.Question, error) {
	pool := c.pools[PoolKey(language, category)]
	return append([]domain.Question(nil), pool...), nil
}

// GetQuestions samples directly from the catalog.
func (c *Catalog) GetQuestions(_ context.Context, count int, language, category string) ([]domain.Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Sample(c.pools[PoolKey(language, category)], count, c.rnd), nil
}

// Keys lists the catalog's pool keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.pools))
	for k := range c.pools {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pool returns the questions stored under key.
func (c *Catalog) Pool(key string) []domain.Question {
	return append([]domain.Question(nil), c.pools[key]...)
}
