package repository

import (
	"context"
	"errors"
	"time"

	"rewardledger/internal/model"
)

var (
	ErrNegativeBalance       = errors.New("balance cannot be negative")
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// BalanceStore maps an account to its unit balance.
// SetBalance is last-writer-wins; callers serialize per account.
type BalanceStore interface {
	// GetBalance returns 0 for an account that has never earned.
	GetBalance(ctx context.Context, accountID string) (int64, error)
	SetBalance(ctx context.Context, accountID string, units int64) error
}

// GrantStore maps (account, feature) to the expiry of a temporary unlock.
type GrantStore interface {
	// GetGrant returns nil, nil when no grant row exists. Expired rows are
	// returned as is; use FeatureGrant.Active.
	GetGrant(ctx context.Context, accountID, feature string) (*model.FeatureGrant, error)
	// PutGrant overwrites any prior grant for the pair.
	PutGrant(ctx context.Context, accountID, feature string, expiresAt time.Time) error
}

// Tx is the view of the store inside Store.Transaction. Everything written
// through it commits together or not at all.
type Tx interface {
	BalanceStore
	GrantStore
	AppendTransaction(ctx context.Context, trans *model.UnitTransaction) error
	EnqueueOutbox(ctx context.Context, msg *model.OutboxMessage) error
}

// OutboxStore drives the event relay. Updates to an unknown id return
// ErrOutboxMessageNotFound.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id int64) error
	IncrementOutboxRetry(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64) error
}

// GrantCompactor removes grant rows that expired before a cutoff.
type GrantCompactor interface {
	DeleteExpiredGrants(ctx context.Context, before time.Time) (int64, error)
}

type Store interface {
	BalanceStore
	GrantStore
	OutboxStore
	GrantCompactor

	// Transaction runs fn atomically. If fn returns an error nothing it wrote
	// is visible afterwards.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	ListTransactions(ctx context.Context, accountID string, page, pageSize int) ([]*model.UnitTransaction, int64, error)
}
