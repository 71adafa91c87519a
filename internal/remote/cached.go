package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leduong/EPlusTV/internal/models"
)

const (
	defaultCacheTTL = 10 * time.Minute
	keyPrefix       = "eplustv:"
)

// CachedStore keeps listing responses in Redis. Credential documents always
// go to the underlying store. Redis failures fall through to the store.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps store with a Redis cache at rawURL.
func NewCachedStore(store Store, rawURL string, ttl time.Duration) (*CachedStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newCachedStore(store, redis.NewClient(opts), ttl), nil
}

func newCachedStore(store Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{
		Store:  store,
		client: client,
		ttl:    ttl,
		logger: slog.Default().With(slog.String("component", "remote_cache")),
	}
}

func entriesKey(from string) string {
	return keyPrefix + "entries:" + from
}

// Entries serves the listing from Redis when present.
func (c *CachedStore) Entries(ctx context.Context, from string) ([]*models.Entry, error) {
	key := entriesKey(from)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entries []*models.Entry
		if jerr := json.Unmarshal(raw, &entries); jerr == nil {
			return entries, nil
		}
		c.logger.Warn("discarding undecodable cache value", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	entries, err := c.Store.Entries(ctx, from)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(entries); jerr == nil {
		if serr := c.client.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.logger.Debug("cache write failed", slog.String("key", key), slog.String("error", serr.Error()))
		}
	}
	return entries, nil
}

// Invalidate drops the cached listing for from.
func (c *CachedStore) Invalidate(ctx context.Context, from string) error {
	return c.client.Del(ctx, entriesKey(from)).Err()
}

// Ping checks both Redis and the underlying store.
func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return c.Store.Ping(ctx)
}

// Close closes Redis and the underlying store.
func (c *CachedStore) Close() error {
	rerr := c.client.Close()
	if err := c.Store.Close(); err != nil {
		return err
	}
	return rerr
}
