// Package storetest holds the behaviour every repository.Store must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"rewardledger/internal/model"
	"rewardledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("BalanceDefaultsToZero", func(t *testing.T) {
		s := newStore(t)
		units, err := s.GetBalance(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Equal(t, int64(0), units)
	})

	t.Run("SetBalanceOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SetBalance(ctx, "acc-1", 4))
		require.NoError(t, s.SetBalance(ctx, "acc-1", 1))

		units, err := s.GetBalance(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), units)

		require.ErrorIs(t, s.SetBalance(ctx, "acc-1", -1), repository.ErrNegativeBalance)
	})

	t.Run("GrantMissingIsNil", func(t *testing.T) {
		s := newStore(t)
		grant, err := s.GetGrant(context.Background(), "acc-1", "analytics")
		require.NoError(t, err)
		assert.Nil(t, grant)
	})

	t.Run("PutGrantOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		second := first.Add(6 * time.Hour)

		require.NoError(t, s.PutGrant(ctx, "acc-1", "analytics", first))
		require.NoError(t, s.PutGrant(ctx, "acc-1", "analytics", second))
		require.NoError(t, s.PutGrant(ctx, "acc-1", "bulk_export", first))

		grant, err := s.GetGrant(ctx, "acc-1", "analytics")
		require.NoError(t, err)
		require.NotNil(t, grant)
		assert.True(t, grant.ExpiresAt.Equal(second), "got %s", grant.ExpiresAt)

		other, err := s.GetGrant(ctx, "acc-1", "bulk_export")
		require.NoError(t, err)
		require.NotNil(t, other)
		assert.True(t, other.ExpiresAt.Equal(first))
	})

	t.Run("TransactionCommits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		expires := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

		err := s.Transaction(ctx, func(tx repository.Tx) error {
			before, err := tx.GetBalance(ctx, "acc-1")
			if err != nil {
				return err
			}
			if err := tx.SetBalance(ctx, "acc-1", before+5); err != nil {
				return err
			}
			got, err := tx.GetBalance(ctx, "acc-1")
			if err != nil {
				return err
			}
			assert.Equal(t, int64(5), got, "writes are visible inside the transaction")

			if err := tx.PutGrant(ctx, "acc-1", "analytics", expires); err != nil {
				return err
			}
			if err := tx.AppendTransaction(ctx, &model.UnitTransaction{
				TransactionNo: "UNT-1", AccountID: "acc-1", Type: model.TransactionTypeEarn,
				Amount: 5, BalanceBefore: before, BalanceAfter: before + 5,
			}); err != nil {
				return err
			}
			return tx.EnqueueOutbox(ctx, &model.OutboxMessage{
				MessageKey: "UNT-1", Topic: "ledger", EventType: model.EventUnitsEarned, Payload: `{}`,
			})
		})
		require.NoError(t, err)

		units, err := s.GetBalance(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), units)

		grant, err := s.GetGrant(ctx, "acc-1", "analytics")
		require.NoError(t, err)
		require.NotNil(t, grant)

		list, total, err := s.ListTransactions(ctx, "acc-1", 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, list, 1)
		assert.Equal(t, "UNT-1", list[0].TransactionNo)

		pending, err := s.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, model.OutboxStatusPending, pending[0].Status)
	})

	t.Run("TransactionRollsBackEverything", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SetBalance(ctx, "acc-1", 5))

		err := s.Transaction(ctx, func(tx repository.Tx) error {
			if err := tx.SetBalance(ctx, "acc-1", 0); err != nil {
				return err
			}
			if err := tx.PutGrant(ctx, "acc-1", "analytics", time.Now().Add(time.Hour)); err != nil {
				return err
			}
			if err := tx.AppendTransaction(ctx, &model.UnitTransaction{
				TransactionNo: "UNT-2", AccountID: "acc-1", Type: model.TransactionTypeSpend, Amount: -5,
				BalanceBefore: 5,
			}); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		units, err := s.GetBalance(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), units)

		grant, err := s.GetGrant(ctx, "acc-1", "analytics")
		require.NoError(t, err)
		assert.Nil(t, grant)

		_, total, err := s.ListTransactions(ctx, "acc-1", 1, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("ListTransactionsPagesNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, no := range []string{"UNT-a", "UNT-b", "UNT-c"} {
			i, no := int64(i), no
			require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
				return tx.AppendTransaction(ctx, &model.UnitTransaction{
					TransactionNo: no, AccountID: "acc-1", Type: model.TransactionTypeEarn,
					Amount: 1, BalanceBefore: i, BalanceAfter: i + 1,
				})
			}))
		}

		page1, total, err := s.ListTransactions(ctx, "acc-1", 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, page1, 2)
		assert.Equal(t, "UNT-c", page1[0].TransactionNo)
		assert.Equal(t, "UNT-b", page1[1].TransactionNo)

		page2, _, err := s.ListTransactions(ctx, "acc-1", 2, 2)
		require.NoError(t, err)
		require.Len(t, page2, 1)
		assert.Equal(t, "UNT-a", page2[0].TransactionNo)
	})

	t.Run("OutboxLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			for _, key := range []string{"k1", "k2"} {
				if err := tx.EnqueueOutbox(ctx, &model.OutboxMessage{
					MessageKey: key, Topic: "ledger", EventType: model.EventUnitsSpent, Payload: `{}`,
				}); err != nil {
					return err
				}
			}
			return nil
		}))

		pending, err := s.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "k1", pending[0].MessageKey)

		require.NoError(t, s.MarkOutboxSent(ctx, pending[0].ID))
		require.NoError(t, s.IncrementOutboxRetry(ctx, pending[1].ID))

		pending, err = s.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "k2", pending[0].MessageKey)
		assert.Equal(t, 1, pending[0].RetryCount)

		require.NoError(t, s.MarkOutboxFailed(ctx, pending[0].ID))
		pending, err = s.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		assert.ErrorIs(t, s.MarkOutboxSent(ctx, 999999), repository.ErrOutboxMessageNotFound)
		assert.ErrorIs(t, s.IncrementOutboxRetry(ctx, 999999), repository.ErrOutboxMessageNotFound)
	})

	t.Run("DeleteExpiredGrants", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.PutGrant(ctx, "acc-1", "old", cutoff.Add(-time.Hour)))
		require.NoError(t, s.PutGrant(ctx, "acc-2", "old", cutoff.Add(-time.Minute)))
		require.NoError(t, s.PutGrant(ctx, "acc-1", "fresh", cutoff.Add(time.Hour)))

		n, err := s.DeleteExpiredGrants(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		grant, err := s.GetGrant(ctx, "acc-1", "old")
		require.NoError(t, err)
		assert.Nil(t, grant)

		grant, err = s.GetGrant(ctx, "acc-1", "fresh")
		require.NoError(t, err)
		assert.NotNil(t, grant)
	})
}
