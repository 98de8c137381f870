package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rewardledger/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// CachedProvider puts a Redis read-through cache in front of another
// Provider. A Redis failure never fails the lookup; it falls through.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "subscription-cache").Logger(),
	}
}

func CacheKey(accountID string) string {
	return fmt.Sprintf("rewardledger:subscription:%s", accountID)
}

func (p *CachedProvider) Status(ctx context.Context, accountID string) (model.Subscription, error) {
	key := CacheKey(accountID)

	raw, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var sub model.Subscription
		if jsonErr := json.Unmarshal(raw, &sub); jsonErr == nil {
			return sub, nil
		}
		p.logger.Warn().Str("account_id", accountID).Msg("dropping undecodable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		p.logger.Warn().Err(err).Str("account_id", accountID).Msg("subscription cache read failed")
	}

	sub, err := p.inner.Status(ctx, accountID)
	if err != nil {
		return model.Subscription{}, err
	}

	if payload, err := json.Marshal(sub); err == nil {
		if err := p.client.Set(ctx, key, payload, p.ttl).Err(); err != nil {
			p.logger.Warn().Err(err).Str("account_id", accountID).Msg("subscription cache write failed")
		}
	}
	return sub, nil
}
