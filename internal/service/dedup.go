package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rewardledger/internal/clock"

	"github.com/go-redis/redis/v8"
)

// Deduper remembers ad completion event ids for a while so a replayed
// callback is credited once.
type Deduper interface {
	// Claim returns false if eventID was claimed before and not released.
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func AdEventKey(eventID string) string {
	return fmt.Sprintf("rewardledger:ad_event:%s", eventID)
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.client.SetNX(ctx, AdEventKey(eventID), time.Now().Unix(), d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, AdEventKey(eventID)).Err()
}

// MemoryDeduper is the single-instance Deduper.
type MemoryDeduper struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  clock.Clock
	claims map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration, clk clock.Clock) *MemoryDeduper {
	if clk == nil {
		clk = clock.System{}
	}
	return &MemoryDeduper{ttl: ttl, clock: clk, claims: make(map[string]time.Time)}
}

func (d *MemoryDeduper) Claim(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if expires, ok := d.claims[eventID]; ok && now.Before(expires) {
		return false, nil
	}
	d.claims[eventID] = now.Add(d.ttl)

	// drop stale claims so the map does not grow without bound
	for id, expires := range d.claims {
		if !now.Before(expires) {
			delete(d.claims, id)
		}
	}
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, eventID)
	return nil
}
