package repository

import (
	"context"
	"time"

	"rewardledger/internal/model"

	"gorm.io/gorm"
)

// GormStore is the durable Store. Balance, grant, journal and outbox rows
// written through Transaction share one database transaction.
type GormStore struct {
	db           *gorm.DB
	balances     *BalanceRepository
	grants       *GrantRepository
	transactions *TransactionRepository
	outbox       *OutboxRepository
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:           db,
		balances:     NewBalanceRepository(db),
		grants:       NewGrantRepository(db),
		transactions: NewTransactionRepository(db),
		outbox:       NewOutboxRepository(db),
	}
}

func (s *GormStore) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return s.balances.Get(ctx, nil, accountID)
}

func (s *GormStore) SetBalance(ctx context.Context, accountID string, units int64) error {
	return s.balances.Set(ctx, nil, accountID, units)
}

func (s *GormStore) GetGrant(ctx context.Context, accountID, feature string) (*model.FeatureGrant, error) {
	return s.grants.Get(ctx, nil, accountID, feature)
}

func (s *GormStore) PutGrant(ctx context.Context, accountID, feature string, expiresAt time.Time) error {
	return s.grants.Put(ctx, nil, accountID, feature, expiresAt)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{store: s, tx: tx})
	})
}

func (s *GormStore) ListTransactions(ctx context.Context, accountID string, page, pageSize int) ([]*model.UnitTransaction, int64, error) {
	return s.transactions.ListByAccountID(ctx, accountID, page, pageSize)
}

func (s *GormStore) PendingOutbox(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return s.outbox.Pending(ctx, limit)
}

func (s *GormStore) MarkOutboxSent(ctx context.Context, id int64) error {
	return s.outbox.MarkSent(ctx, id, time.Now())
}

func (s *GormStore) IncrementOutboxRetry(ctx context.Context, id int64) error {
	return s.outbox.BumpRetry(ctx, id)
}

func (s *GormStore) MarkOutboxFailed(ctx context.Context, id int64) error {
	return s.outbox.MarkFailed(ctx, id)
}

func (s *GormStore) DeleteExpiredGrants(ctx context.Context, before time.Time) (int64, error) {
	return s.grants.DeleteExpired(ctx, before)
}

type gormTx struct {
	store *GormStore
	tx    *gorm.DB
}

// GetBalance locks the balance row so a concurrent writer on another
// instance waits for this transaction.
func (t *gormTx) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return t.store.balances.GetForUpdate(ctx, t.tx, accountID)
}

func (t *gormTx) SetBalance(ctx context.Context, accountID string, units int64) error {
	return t.store.balances.Set(ctx, t.tx, accountID, units)
}

func (t *gormTx) GetGrant(ctx context.Context, accountID, feature string) (*model.FeatureGrant, error) {
	return t.store.grants.Get(ctx, t.tx, accountID, feature)
}

func (t *gormTx) PutGrant(ctx context.Context, accountID, feature string, expiresAt time.Time) error {
	return t.store.grants.Put(ctx, t.tx, accountID, feature, expiresAt)
}

func (t *gormTx) AppendTransaction(ctx context.Context, trans *model.UnitTransaction) error {
	return t.store.transactions.Create(ctx, t.tx, trans)
}

func (t *gormTx) EnqueueOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	return t.store.outbox.Enqueue(ctx, t.tx, msg)
}
