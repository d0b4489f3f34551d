// Package tokencache is a Redis-backed read-through cache in front of
// store.Store.FindVoterByToken, the highest-QPS read path (ballot
// display). It is never consulted for the double-submission guard,
// which always goes straight to Postgres inside the submission
// transaction — this cache only accelerates reads, it never holds
// authority over whether a voter has voted.
package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/zemekeneng/rankchoice/internal/log"
	"github.com/zemekeneng/rankchoice/internal/store"
)

const ttl = 5 * time.Minute

// Cache wraps a store.Store with a Redis read-through layer for
// FindVoterByToken. A nil pool disables caching: every call passes
// through to the underlying store, which is also what happens if
// Redis is unreachable at runtime.
type Cache struct {
	store.Store
	pool *redis.Pool
}

// New wraps next with a cache backed by the Redis pool at addr. Pass
// an empty addr to disable caching (Cache then behaves as an
// uncached passthrough).
func New(next store.Store, addr string) *Cache {
	c := &Cache{Store: next}
	if addr == "" {
		return c
	}
	c.pool = &redis.Pool{
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		MaxIdle:     8,
		IdleTimeout: 30 * time.Second,
	}
	return c
}

type cachedVoter struct {
	Voter store.Voter
}

// FindVoterByToken checks Redis before falling back to the wrapped
// store. A cache miss, a malformed entry, or Redis being unreachable
// all fall back silently to the store — this layer is an accelerator,
// never a source of truth.
func (c *Cache) FindVoterByToken(ctx context.Context, token string) (store.Voter, error) {
	if c.pool == nil {
		return c.Store.FindVoterByToken(ctx, token)
	}

	if v, ok := c.get(ctx, token); ok {
		return v, nil
	}

	v, err := c.Store.FindVoterByToken(ctx, token)
	if err != nil {
		return store.Voter{}, err
	}
	c.set(ctx, token, v)
	return v, nil
}

// InvalidateVoter removes a cached entry, used after a submission so a
// stale voted_at never serves from cache.
func (c *Cache) InvalidateVoter(ctx context.Context, token string) {
	if c.pool == nil {
		return
	}
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return
	}
	defer conn.Close()
	_, _ = conn.Do("DEL", key(token))
}

func (c *Cache) get(ctx context.Context, token string) (store.Voter, bool) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("tokencache: redis unavailable, falling back to store")
		return store.Voter{}, false
	}
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", key(token)))
	if err != nil {
		return store.Voter{}, false
	}

	var cached cachedVoter
	if err := json.Unmarshal(raw, &cached); err != nil {
		return store.Voter{}, false
	}
	return cached.Voter, true
}

func (c *Cache) set(ctx context.Context, token string, v store.Voter) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return
	}
	defer conn.Close()

	raw, err := json.Marshal(cachedVoter{Voter: v})
	if err != nil {
		return
	}
	_, _ = conn.Do("SET", key(token), raw, "EX", int(ttl.Seconds()))
}

func key(token string) string {
	return fmt.Sprintf("rankchoice:voter-token:%s", token)
}
