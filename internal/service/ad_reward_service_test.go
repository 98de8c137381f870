package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rewardledger/internal/clock"
	"rewardledger/internal/repository/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdCompletionCreditsOncePerEvent(t *testing.T) {
	f := newFixture(t, nil)
	ads := NewAdRewardService(f.ledger, NewMemoryDeduper(time.Hour, f.clock), 2, zerolog.Nop())
	ctx := context.Background()

	res, err := ads.Complete(ctx, AdCompletion{AccountID: "A", EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Balance)

	_, err = ads.Complete(ctx, AdCompletion{AccountID: "A", EventID: "evt-1"})
	require.ErrorIs(t, err, ErrDuplicateAdEvent)

	res, err = ads.Complete(ctx, AdCompletion{AccountID: "A", EventID: "evt-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Balance)
	assert.Equal(t, int64(4), f.balance(t, "A"))
}

func TestAdCompletionConcurrentReplays(t *testing.T) {
	f := newFixture(t, nil)
	ads := NewAdRewardService(f.ledger, NewMemoryDeduper(time.Hour, nil), 3, zerolog.Nop())

	var (
		wg       sync.WaitGroup
		credited int32
	)
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			if _, err := ads.Complete(context.Background(), AdCompletion{AccountID: "A", EventID: "evt-1"}); err == nil {
				atomic.AddInt32(&credited, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), credited)
	assert.Equal(t, int64(3), f.balance(t, "A"))
}

func TestAdCompletionReleasesClaimOnFailure(t *testing.T) {
	store := &faultyStore{Store: memory.NewStore(), failTx: 3}
	f := newFixture(t, store)
	ads := NewAdRewardService(f.ledger, NewMemoryDeduper(time.Hour, nil), 2, zerolog.Nop())
	ctx := context.Background()

	_, err := ads.Complete(ctx, AdCompletion{AccountID: "A", EventID: "evt-1"})
	require.ErrorIs(t, err, ErrStoreUnavailable)

	res, err := ads.Complete(ctx, AdCompletion{AccountID: "A", EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Balance)
}

func TestAdCompletionValidation(t *testing.T) {
	f := newFixture(t, nil)
	ads := NewAdRewardService(f.ledger, NewMemoryDeduper(time.Hour, nil), 2, zerolog.Nop())

	_, err := ads.Complete(context.Background(), AdCompletion{AccountID: "A"})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ads.Complete(context.Background(), AdCompletion{EventID: "evt-1"})
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, int64(2), ads.RewardUnits())
}

func TestMemoryDeduperExpires(t *testing.T) {
	clk := clock.NewManual(t0)
	d := NewMemoryDeduper(time.Hour, clk)
	ctx := context.Background()

	ok, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(time.Hour)
	ok, err = d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, d.Release(ctx, "evt-1"))
	ok, err = d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisDeduper(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := NewRedisDeduper(client, time.Hour)
	ctx := context.Background()

	ok, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, srv.TTL(AdEventKey("evt-1")))

	ok, err = d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Release(ctx, "evt-1"))
	ok, err = d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	srv.FastForward(2 * time.Hour)
	ok, err = d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
