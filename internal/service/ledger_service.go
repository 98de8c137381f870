package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"rewardledger/internal/clock"
	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/infrastructure/metrics"
	"rewardledger/internal/logging"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/internal/subscription"
	"rewardledger/pkg/idgen"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const (
	defaultEventTopic      = "reward-ledger-events"
	defaultMaxAttempts     = 3
	defaultInitialInterval = 50 * time.Millisecond
	maxPageSize            = 100
)

// Ledger is the only writer of balances and grants.
//
// Every Earn and Spend on one account runs under that account's lock and
// inside one store transaction, so the debit and the grant of a Spend are
// never observed apart. Different accounts never wait on each other.
type Ledger struct {
	store  repository.Store
	subs   subscription.Provider
	locker lock.Locker
	clock  clock.Clock
	logger zerolog.Logger

	eventTopic      string
	maxAttempts     uint
	initialInterval time.Duration
	newTransNo      func() string
}

type Option func(*Ledger)

// WithLocker replaces the default in-process locker, e.g. with a
// lock.RedisLocker when several instances share one database.
func WithLocker(l lock.Locker) Option {
	return func(led *Ledger) { led.locker = l }
}

func WithClock(c clock.Clock) Option {
	return func(led *Ledger) { led.clock = c }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(led *Ledger) { led.logger = logging.Component(logger, "ledger") }
}

func WithEventTopic(topic string) Option {
	return func(led *Ledger) { led.eventTopic = topic }
}

// WithRetry bounds automatic retries of StoreUnavailable failures.
// maxAttempts counts the first try; 1 disables retrying.
func WithRetry(maxAttempts uint, initialInterval time.Duration) Option {
	return func(led *Ledger) {
		led.maxAttempts = maxAttempts
		led.initialInterval = initialInterval
	}
}

func WithTransactionNo(fn func() string) Option {
	return func(led *Ledger) { led.newTransNo = fn }
}

func NewLedger(store repository.Store, subs subscription.Provider, opts ...Option) *Ledger {
	l := &Ledger{
		store:           store,
		subs:            subs,
		locker:          lock.NewLocalLocker(),
		clock:           clock.System{},
		logger:          zerolog.Nop(),
		eventTopic:      defaultEventTopic,
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
		newTransNo:      idgen.GenerateTransactionNo,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxAttempts == 0 {
		l.maxAttempts = 1
	}
	return l
}

type EarnResult struct {
	Balance int64 `json:"balance"`
}

type SpendRequest struct {
	AccountID     string
	Feature       string
	UnitsRequired int64
	GrantDuration time.Duration
}

type SpendResult struct {
	Balance   int64     `json:"balance"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Earn credits amount units to accountID and returns the new balance.
func (l *Ledger) Earn(ctx context.Context, accountID string, amount int64) (EarnResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return EarnResult{}, l.finish(ctx, "earn", invalidAmount("account id is required"))
	}
	if amount <= 0 {
		return EarnResult{}, l.finish(ctx, "earn", invalidAmount("amount must be positive, got %d", amount))
	}

	var result EarnResult
	err := l.retry(ctx, func() error {
		return l.locked(ctx, accountID, func() error {
			return l.store.Transaction(ctx, func(tx repository.Tx) error {
				before, err := tx.GetBalance(ctx, accountID)
				if err != nil {
					return fmt.Errorf("read balance: %w", err)
				}
				if before > math.MaxInt64-amount {
					return invalidAmount("crediting %d units would overflow the balance", amount)
				}
				after := before + amount

				if err := tx.SetBalance(ctx, accountID, after); err != nil {
					return fmt.Errorf("write balance: %w", err)
				}
				if err := l.record(ctx, tx, model.UnitTransaction{
					AccountID:     accountID,
					Type:          model.TransactionTypeEarn,
					Amount:        amount,
					BalanceBefore: before,
					BalanceAfter:  after,
				}); err != nil {
					return err
				}

				result = EarnResult{Balance: after}
				return nil
			})
		})
	})
	if err != nil {
		return EarnResult{}, l.finish(ctx, "earn", err)
	}

	metrics.UnitsEarned(amount)
	l.finish(ctx, "earn", nil)
	logging.FromContext(ctx, l.logger).Info().
		Str("account_id", accountID).
		Int64("amount", amount).
		Int64("balance", result.Balance).
		Msg("units earned")
	return result, nil
}

// Spend debits req.UnitsRequired and unlocks req.Feature until
// now+req.GrantDuration, replacing any earlier grant for that feature.
//
// Checks run in order: input, subscription, balance. Subscribers are
// refused with AlreadyEntitled and nothing is written.
func (l *Ledger) Spend(ctx context.Context, req SpendRequest) (SpendResult, error) {
	accountID := strings.TrimSpace(req.AccountID)
	feature := config.FeatureKey(req.Feature)
	switch {
	case accountID == "":
		return SpendResult{}, l.finish(ctx, "spend", invalidAmount("account id is required"))
	case feature == "":
		return SpendResult{}, l.finish(ctx, "spend", invalidAmount("feature name is required"))
	case req.UnitsRequired <= 0:
		return SpendResult{}, l.finish(ctx, "spend", invalidAmount("units required must be positive, got %d", req.UnitsRequired))
	case req.GrantDuration <= 0:
		return SpendResult{}, l.finish(ctx, "spend", invalidAmount("grant duration must be positive, got %s", req.GrantDuration))
	}

	var result SpendResult
	err := l.retry(ctx, func() error {
		if err := l.ensureNotSubscriber(ctx, accountID); err != nil {
			return err
		}
		return l.locked(ctx, accountID, func() error {
			return l.store.Transaction(ctx, func(tx repository.Tx) error {
				before, err := tx.GetBalance(ctx, accountID)
				if err != nil {
					return fmt.Errorf("read balance: %w", err)
				}
				if before < req.UnitsRequired {
					return insufficientBalance(before, req.UnitsRequired)
				}
				after := before - req.UnitsRequired
				expiresAt := l.clock.Now().Add(req.GrantDuration)

				if err := tx.SetBalance(ctx, accountID, after); err != nil {
					return fmt.Errorf("write balance: %w", err)
				}
				if err := tx.PutGrant(ctx, accountID, feature, expiresAt); err != nil {
					return fmt.Errorf("write grant: %w", err)
				}
				if err := l.record(ctx, tx, model.UnitTransaction{
					AccountID:     accountID,
					Type:          model.TransactionTypeSpend,
					Amount:        -req.UnitsRequired,
					BalanceBefore: before,
					BalanceAfter:  after,
					Feature:       feature,
					GrantExpires:  &expiresAt,
				}); err != nil {
					return err
				}

				result = SpendResult{Balance: after, ExpiresAt: expiresAt}
				return nil
			})
		})
	})
	if err != nil {
		return SpendResult{}, l.finish(ctx, "spend", err)
	}

	metrics.UnitsSpent(feature, req.UnitsRequired)
	l.finish(ctx, "spend", nil)
	logging.FromContext(ctx, l.logger).Info().
		Str("account_id", accountID).
		Str("feature", feature).
		Int64("units", req.UnitsRequired).
		Int64("balance", result.Balance).
		Time("expires_at", result.ExpiresAt).
		Msg("units spent")
	return result, nil
}

// Balance returns the current balance; 0 for an unknown account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return 0, invalidAmount("account id is required")
	}
	units, err := l.store.GetBalance(ctx, accountID)
	if err != nil {
		return 0, storeUnavailable("read balance", err)
	}
	return units, nil
}

// Transactions pages the account's journal, newest first.
func (l *Ledger) Transactions(ctx context.Context, accountID string, page, pageSize int) ([]*model.UnitTransaction, int64, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, 0, invalidAmount("account id is required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = 20
	}
	list, total, err := l.store.ListTransactions(ctx, accountID, page, pageSize)
	if err != nil {
		return nil, 0, storeUnavailable("list transactions", err)
	}
	return list, total, nil
}

func (l *Ledger) ensureNotSubscriber(ctx context.Context, accountID string) error {
	sub, err := l.subs.Status(ctx, accountID)
	if err != nil {
		return storeUnavailable("read subscription status", err)
	}
	if sub.ActiveAt(l.clock.Now()) {
		logging.FromContext(ctx, l.logger).Warn().
			Str("account_id", accountID).
			Msg("spend called for a subscribed account; callers should check the feature gate first")
		return alreadyEntitled(accountID)
	}
	return nil
}

// locked runs fn while holding the account lock.
func (l *Ledger) locked(ctx context.Context, accountID string, fn func() error) error {
	release, err := l.locker.Acquire(ctx, accountID)
	if err != nil {
		return storeUnavailable("acquire account lock", err)
	}
	defer release()
	return fn()
}

// record appends the journal row and its outbox event inside tx.
func (l *Ledger) record(ctx context.Context, tx repository.Tx, trans model.UnitTransaction) error {
	trans.TransactionNo = l.newTransNo()
	if err := tx.AppendTransaction(ctx, &trans); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}

	eventType := model.EventUnitsEarned
	if trans.Type == model.TransactionTypeSpend {
		eventType = model.EventUnitsSpent
	}
	msg, err := newOutboxMessage(l.eventTopic, LedgerEvent{
		EventID:       idgen.GenerateEventID(),
		EventType:     eventType,
		TransactionNo: trans.TransactionNo,
		AccountID:     trans.AccountID,
		Amount:        trans.Amount,
		Balance:       trans.BalanceAfter,
		Feature:       trans.Feature,
		ExpiresAt:     trans.GrantExpires,
		OccurredAt:    l.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode ledger event: %w", err)
	}
	if err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return fmt.Errorf("enqueue ledger event: %w", err)
	}
	return nil
}

// retry repeats op while it fails with StoreUnavailable. Every other
// *Error ends the loop at once. Untyped errors count as StoreUnavailable.
func (l *Ledger) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		var ledgerErr *Error
		if !errors.As(err, &ledgerErr) {
			err = storeUnavailable("ledger store", err)
		} else if ledgerErr.Kind != KindStoreUnavailable {
			return struct{}{}, backoff.Permanent(err)
		}
		logging.FromContext(ctx, l.logger).Debug().Err(err).Msg("retryable ledger failure")
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(l.maxAttempts))
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	var ledgerErr *Error
	if !errors.As(err, &ledgerErr) {
		// context cancelled or deadline hit between attempts
		err = storeUnavailable("ledger store", err)
	}
	return err
}

// finish records the outcome metric and passes err through.
func (l *Ledger) finish(ctx context.Context, op string, err error) error {
	if err == nil {
		metrics.LedgerOperation(op, "ok")
		return nil
	}
	kind := KindOf(err)
	metrics.LedgerOperation(op, string(kind))
	if kind == KindStoreUnavailable {
		logging.FromContext(ctx, l.logger).Error().Err(err).Str("op", op).Msg("ledger operation failed")
	}
	return err
}
