// Package subscription reads the billing system's view of an account.
// Nothing here writes subscription state that billing owns.
package subscription

import (
	"context"
	"sync"
	"time"

	"rewardledger/internal/model"
)

// Provider reports whether an account is a paying subscriber.
// Unknown accounts are non-subscribers, not errors.
type Provider interface {
	Status(ctx context.Context, accountID string) (model.Subscription, error)
}

// MemoryProvider is a settable stand-in for billing, used in tests and
// local runs without a subscription table.
type MemoryProvider struct {
	mu     sync.RWMutex
	status map[string]model.Subscription
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{status: make(map[string]model.Subscription)}
}

func (p *MemoryProvider) Status(_ context.Context, accountID string) (model.Subscription, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.status[accountID]; ok {
		return s, nil
	}
	return model.Subscription{AccountID: accountID}, nil
}

// Set marks accountID as a subscriber. A nil until means open ended.
func (p *MemoryProvider) Set(accountID string, until *time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[accountID] = model.Subscription{AccountID: accountID, IsSubscriber: true, SubscriberUntil: until}
}

func (p *MemoryProvider) Clear(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.status, accountID)
}
