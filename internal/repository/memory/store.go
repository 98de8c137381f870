// Package memory is the in-process reference Store. It backs tests and
// single-instance development runs; state is lost on exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rewardledger/internal/model"
	"rewardledger/internal/repository"
)

type grantKey struct {
	accountID string
	feature   string
}

type Store struct {
	mu sync.RWMutex

	balances     map[string]int64
	grants       map[grantKey]model.FeatureGrant
	transactions []model.UnitTransaction
	outbox       []*model.OutboxMessage

	nextTransID  int64
	nextOutboxID int64
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		balances: make(map[string]int64),
		grants:   make(map[grantKey]model.FeatureGrant),
	}
}

func (s *Store) GetBalance(_ context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[accountID], nil
}

func (s *Store) SetBalance(_ context.Context, accountID string, units int64) error {
	if units < 0 {
		return repository.ErrNegativeBalance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] = units
	return nil
}

func (s *Store) GetGrant(_ context.Context, accountID, feature string) (*model.FeatureGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantKey{accountID, feature}]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *Store) PutGrant(_ context.Context, accountID, feature string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putGrantLocked(accountID, feature, expiresAt, time.Now())
	return nil
}

func (s *Store) putGrantLocked(accountID, feature string, expiresAt, now time.Time) {
	key := grantKey{accountID, feature}
	g, ok := s.grants[key]
	if !ok {
		g = model.FeatureGrant{AccountID: accountID, Feature: feature, CreatedAt: now}
	}
	g.ExpiresAt = expiresAt
	g.UpdatedAt = now
	s.grants[key] = g
}

// Transaction holds the write lock for the whole of fn and stages writes,
// applying them only when fn succeeds. fn must use tx, not s.
func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &stagedTx{
		store:    s,
		balances: make(map[string]int64),
		grants:   make(map[grantKey]time.Time),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string, page, pageSize int) ([]*model.UnitTransaction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.UnitTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].AccountID == accountID {
			t := s.transactions[i]
			matched = append(matched, &t)
		}
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start < 0 || start >= len(matched) {
		return []*model.UnitTransaction{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *Store) PendingOutbox(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*model.OutboxMessage
	for _, msg := range s.outbox {
		if msg.Status != model.OutboxStatusPending {
			continue
		}
		m := *msg
		pending = append(pending, &m)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *Store) updateOutbox(id int64, fn func(msg *model.OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.outbox), func(i int) bool { return s.outbox[i].ID >= id })
	if i == len(s.outbox) || s.outbox[i].ID != id {
		return fmt.Errorf("outbox message %d: %w", id, repository.ErrOutboxMessageNotFound)
	}
	fn(s.outbox[i])
	s.outbox[i].UpdatedAt = time.Now()
	return nil
}

func (s *Store) MarkOutboxSent(_ context.Context, id int64) error {
	return s.updateOutbox(id, func(msg *model.OutboxMessage) {
		now := time.Now()
		msg.Status = model.OutboxStatusSent
		msg.SentAt = &now
	})
}

func (s *Store) IncrementOutboxRetry(_ context.Context, id int64) error {
	return s.updateOutbox(id, func(msg *model.OutboxMessage) { msg.RetryCount++ })
}

func (s *Store) MarkOutboxFailed(_ context.Context, id int64) error {
	return s.updateOutbox(id, func(msg *model.OutboxMessage) {
		msg.Status = model.OutboxStatusFailed
		msg.RetryCount++
	})
}

func (s *Store) DeleteExpiredGrants(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, g := range s.grants {
		if g.ExpiresAt.Before(before) {
			delete(s.grants, key)
			n++
		}
	}
	return n, nil
}

// stagedTx buffers writes; reads see staged values first.
type stagedTx struct {
	store        *Store
	balances     map[string]int64
	grants       map[grantKey]time.Time
	transactions []*model.UnitTransaction
	outbox       []*model.OutboxMessage
}

func (t *stagedTx) GetBalance(_ context.Context, accountID string) (int64, error) {
	if units, ok := t.balances[accountID]; ok {
		return units, nil
	}
	return t.store.balances[accountID], nil
}

func (t *stagedTx) SetBalance(_ context.Context, accountID string, units int64) error {
	if units < 0 {
		return repository.ErrNegativeBalance
	}
	t.balances[accountID] = units
	return nil
}

func (t *stagedTx) GetGrant(_ context.Context, accountID, feature string) (*model.FeatureGrant, error) {
	key := grantKey{accountID, feature}
	if expiresAt, ok := t.grants[key]; ok {
		return &model.FeatureGrant{AccountID: accountID, Feature: feature, ExpiresAt: expiresAt}, nil
	}
	g, ok := t.store.grants[key]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (t *stagedTx) PutGrant(_ context.Context, accountID, feature string, expiresAt time.Time) error {
	t.grants[grantKey{accountID, feature}] = expiresAt
	return nil
}

func (t *stagedTx) AppendTransaction(_ context.Context, trans *model.UnitTransaction) error {
	t.transactions = append(t.transactions, trans)
	return nil
}

func (t *stagedTx) EnqueueOutbox(_ context.Context, msg *model.OutboxMessage) error {
	t.outbox = append(t.outbox, msg)
	return nil
}

// apply runs with the store's write lock held.
func (t *stagedTx) apply() {
	s := t.store
	now := time.Now()

	for id, units := range t.balances {
		s.balances[id] = units
	}
	for key, expiresAt := range t.grants {
		s.putGrantLocked(key.accountID, key.feature, expiresAt, now)
	}
	for _, trans := range t.transactions {
		s.nextTransID++
		trans.ID = s.nextTransID
		if trans.CreatedAt.IsZero() {
			trans.CreatedAt = now
		}
		s.transactions = append(s.transactions, *trans)
	}
	for _, msg := range t.outbox {
		s.nextOutboxID++
		msg.ID = s.nextOutboxID
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		msg.CreatedAt, msg.UpdatedAt = now, now
		m := *msg
		s.outbox = append(s.outbox, &m)
	}
}
