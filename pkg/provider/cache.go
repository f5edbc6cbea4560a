package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"creatorpay/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachedVerifier memoizes successful readiness answers in redis for a short
// TTL. Concurrent lookups for the same account share one provider call.
// Failed verifications are never cached, so a creator who finishes
// onboarding is picked up on the next call.
type CachedVerifier struct {
	provider Provider
	rdb      redis.UniversalClient
	ttl      time.Duration
	group    singleflight.Group
}

// NewCachedVerifier works without redis; it then only coalesces calls.
func NewCachedVerifier(p Provider, rdb redis.UniversalClient, ttl time.Duration) *CachedVerifier {
	return &CachedVerifier{provider: p, rdb: rdb, ttl: ttl}
}

func (c *CachedVerifier) Verify(ctx context.Context, accountID string) Readiness {
	key := rediskey.BuildAccountReadyKey(accountID)

	if c.rdb != nil && c.ttl > 0 {
		if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			var r Readiness
			if json.Unmarshal(raw, &r) == nil {
				return r
			}
		} else if !errors.Is(err, redis.Nil) {
			zap.L().Warn("readiness cache read failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		r := verify(ctx, c.provider, accountID)
		if r.Ready && c.rdb != nil && c.ttl > 0 {
			if raw, err := json.Marshal(r); err == nil {
				if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
					zap.L().Warn("readiness cache write failed", zap.String("account_id", accountID), zap.Error(err))
				}
			}
		}
		return r, nil
	})

	return v.(Readiness)
}
