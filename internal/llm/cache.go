package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/analysis"
	"github.com/Viphunter83/userbot-orders/internal/models"
)

// Cache stores verdicts keyed by normalized message text
type Cache interface {
	Get(ctx context.Context, key string) (models.LLMVerdict, bool, error)
	Set(ctx context.Context, key string, v models.LLMVerdict) error
}

// CacheKey hashes the normalized text
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(analysis.Normalize(text)))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	verdict   models.LLMVerdict
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache
type MemoryCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates a process-local cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (models.LLMVerdict, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return models.LLMVerdict{}, false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return models.LLMVerdict{}, false, nil
	}
	return e.verdict, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, v models.LLMVerdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{verdict: v, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Cleanup drops expired entries and returns how many remain
func (m *MemoryCache) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	return len(m.entries)
}

// RedisCache shares verdicts between processes
type RedisCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to Redis at url (redis://...) and pings it
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "userbot:verdict:"}, nil
}

type cachedVerdict struct {
	IsOrder    bool    `json:"is_order"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func (r *RedisCache) Get(ctx context.Context, key string) (models.LLMVerdict, bool, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return models.LLMVerdict{}, false, nil
	}
	if err != nil {
		return models.LLMVerdict{}, false, err
	}

	var cv cachedVerdict
	if err := json.Unmarshal(raw, &cv); err != nil {
		return models.LLMVerdict{}, false, nil
	}
	return models.LLMVerdict{IsOrder: cv.IsOrder, Category: cv.Category, Confidence: cv.Confidence, Reason: cv.Reason}, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, v models.LLMVerdict) error {
	raw, err := json.Marshal(cachedVerdict{IsOrder: v.IsOrder, Category: v.Category, Confidence: v.Confidence, Reason: v.Reason})
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.prefix+key, raw, r.ttl).Err()
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

// CachedClassifier serves repeated texts from a cache instead of calling the model
type CachedClassifier struct {
	next   analysis.LLMPort
	cache  Cache
	logger zerolog.Logger
}

// NewCachedClassifier wraps next with cache
func NewCachedClassifier(next analysis.LLMPort, cache Cache, logger zerolog.Logger) *CachedClassifier {
	return &CachedClassifier{
		next:   next,
		cache:  cache,
		logger: logger.With().Str("component", "llm_cache").Logger(),
	}
}

// Classify returns a cached verdict (marked Cached, zero cost) or delegates
func (c *CachedClassifier) Classify(ctx context.Context, text string) (models.LLMVerdict, error) {
	key := CacheKey(text)

	v, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Verdict cache read failed")
	}
	if ok {
		v.Usage = models.LLMUsage{Cached: true}
		return v, nil
	}

	v, err = c.next.Classify(ctx, text)
	if err != nil {
		return v, err
	}

	if err := c.cache.Set(ctx, key, v); err != nil {
		c.logger.Warn().Err(err).Msg("Verdict cache write failed")
	}
	return v, nil
}
