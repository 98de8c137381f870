package service

import (
	"context"
	"strings"
	"time"

	"rewardledger/internal/clock"
	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/metrics"
	"rewardledger/internal/repository"
	"rewardledger/internal/subscription"
)

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonSubscription   Reason = "subscription"
	ReasonTemporaryGrant Reason = "temporary_grant"
)

type Access struct {
	Granted bool       `json:"granted"`
	Reason  Reason     `json:"reason,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
}

// Gate answers whether an account may use a feature right now.
// It only reads; it never looks at balances.
type Gate struct {
	grants repository.GrantStore
	subs   subscription.Provider
	clock  clock.Clock
}

func NewGate(grants repository.GrantStore, subs subscription.Provider, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.System{}
	}
	return &Gate{grants: grants, subs: subs, clock: clk}
}

// Check reports subscription access first, so a subscriber holding a stale
// grant row still gets ReasonSubscription.
func (g *Gate) Check(ctx context.Context, accountID, feature string) (Access, error) {
	accountID = strings.TrimSpace(accountID)
	feature = config.FeatureKey(feature)
	if accountID == "" {
		return Access{}, invalidAmount("account id is required")
	}
	if feature == "" {
		return Access{}, invalidAmount("feature name is required")
	}

	now := g.clock.Now()

	sub, err := g.subs.Status(ctx, accountID)
	if err != nil {
		return Access{}, storeUnavailable("read subscription status", err)
	}
	if sub.ActiveAt(now) {
		metrics.GateCheck(string(ReasonSubscription))
		return Access{Granted: true, Reason: ReasonSubscription, Until: sub.SubscriberUntil}, nil
	}

	grant, err := g.grants.GetGrant(ctx, accountID, feature)
	if err != nil {
		return Access{}, storeUnavailable("read grant", err)
	}
	if grant.Active(now) {
		until := grant.ExpiresAt
		metrics.GateCheck(string(ReasonTemporaryGrant))
		return Access{Granted: true, Reason: ReasonTemporaryGrant, Until: &until}, nil
	}

	metrics.GateCheck(string(ReasonNone))
	return Access{Granted: false}, nil
}
