// Package cache keeps resolved answers in Redis so later runs can skip units that were
// already resolved.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
)

const keyPrefix = "dataitem"

type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long an answer is reused. <=0 keeps answers until evicted.
	TTL time.Duration
}

// Cache implements the reconciler's Lookup and Recorder collaborators.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg Config) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewWithClient(rdb, cfg.TTL)
}

func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Key is the Redis key for one (company, attribute) answer. Names are lower-cased and trimmed
// so trivially different spellings share an entry.
func Key(company, attribute string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, normalize(company), normalize(attribute))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (c *Cache) Lookup(ctx context.Context, company, attribute string) (enrich.ResolvedAnswer, bool, error) {
	raw, err := c.client.Get(ctx, Key(company, attribute)).Bytes()
	if errors.Is(err, redis.Nil) {
		return enrich.ResolvedAnswer{}, false, nil
	}
	if err != nil {
		return enrich.ResolvedAnswer{}, false, fmt.Errorf("redis get: %w", err)
	}
	var ans enrich.ResolvedAnswer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return enrich.ResolvedAnswer{}, false, fmt.Errorf("decode cached answer: %w", err)
	}
	if ans.Content == nil || !ans.State.Terminal() {
		return enrich.ResolvedAnswer{}, false, nil
	}
	return ans, true, nil
}

// Save stores a resolved answer. Unresolved answers are not cached so a later run retries them.
func (c *Cache) Save(ctx context.Context, ans enrich.ResolvedAnswer) error {
	if ans.Content == nil {
		return nil
	}
	b, err := json.Marshal(ans)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, Key(ans.Company, ans.Attribute), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
