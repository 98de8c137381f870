package memory

import (
	"context"
	"testing"
	"time"

	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/internal/repository/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return NewStore()
	})
}

func TestTransactionAssignsIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	trans := &model.UnitTransaction{TransactionNo: "UNT-1", AccountID: "acc-1", Type: model.TransactionTypeEarn, Amount: 1}
	msg := &model.OutboxMessage{MessageKey: "UNT-1", Topic: "ledger", EventType: model.EventUnitsEarned}
	require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
		if err := tx.AppendTransaction(ctx, trans); err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	}))

	assert.Equal(t, int64(1), trans.ID)
	assert.Equal(t, int64(1), msg.ID)
	assert.False(t, trans.CreatedAt.IsZero())
}

func TestTransactionRejectsCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Transaction(ctx, func(tx repository.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestGetGrantReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutGrant(ctx, "acc-1", "analytics", expires))

	g, err := s.GetGrant(ctx, "acc-1", "analytics")
	require.NoError(t, err)
	g.ExpiresAt = expires.Add(time.Hour)

	again, err := s.GetGrant(ctx, "acc-1", "analytics")
	require.NoError(t, err)
	assert.True(t, again.ExpiresAt.Equal(expires))
}
