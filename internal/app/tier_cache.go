/**
 * @description
 * Redis-backed read-through cache for tier tables. Tier definitions change
 * rarely but are read on every commission calculation and tier lookup, so they
 * are cached per provider kind with a short TTL. Definitions are administered
 * outside this service, so the TTL bounds staleness.
 */

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnsphere/commission-service/internal/domain"
)

const defaultTierCacheTTL = 5 * time.Minute

// RedisTierCache wraps a TierSource with a redis read-through cache. Cache
// failures degrade to the underlying source; they never fail a request.
type RedisTierCache struct {
	client redis.UniversalClient
	source TierSource
	prefix string
	ttl    time.Duration
}

// NewRedisTierCache creates a tier cache in front of source.
func NewRedisTierCache(client redis.UniversalClient, source TierSource, prefix string, ttl time.Duration) *RedisTierCache {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "learnsphere:tiers"
	}
	if ttl <= 0 {
		ttl = defaultTierCacheTTL
	}
	return &RedisTierCache{client: client, source: source, prefix: trimmed, ttl: ttl}
}

func (c *RedisTierCache) key(kind domain.ProviderKind) string {
	return fmt.Sprintf("%s:%s", c.prefix, kind)
}

// ActiveTiers returns the cached tier table, falling through to the source on
// miss or on any cache error.
func (c *RedisTierCache) ActiveTiers(ctx context.Context, kind domain.ProviderKind) ([]domain.CommissionTier, error) {
	if c.client != nil {
		cached, err := c.client.Get(ctx, c.key(kind)).Bytes()
		if err == nil {
			var tiers []domain.CommissionTier
			if jsonErr := json.Unmarshal(cached, &tiers); jsonErr == nil {
				return tiers, nil
			}
			// Corrupt entry: drop it and reload.
			c.client.Del(ctx, c.key(kind))
		} else if err != redis.Nil {
			log.Printf("level=warn component=tier_cache msg=\"cache read failed; falling through\" kind=%s err=%v", kind, err)
		}
	}

	tiers, err := c.source.ActiveTiers(ctx, kind)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		if payload, jsonErr := json.Marshal(tiers); jsonErr == nil {
			if setErr := c.client.Set(ctx, c.key(kind), payload, c.ttl).Err(); setErr != nil {
				log.Printf("level=warn component=tier_cache msg=\"cache write failed\" kind=%s err=%v", kind, setErr)
			}
		}
	}
	return tiers, nil
}

// Invalidate drops the cached table for a provider kind. Tier definitions are
// written outside this service, so expiry normally comes from the TTL; this
// exists for operators and consumers reacting to a definition change upstream.
func (c *RedisTierCache) Invalidate(ctx context.Context, kind domain.ProviderKind) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(kind)).Err()
}
