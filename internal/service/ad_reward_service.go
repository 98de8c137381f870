package service

import (
	"context"
	"errors"
	"strings"

	"rewardledger/internal/logging"

	"github.com/rs/zerolog"
)

var ErrDuplicateAdEvent = errors.New("ad completion already credited")

// AdCompletion is one verified "user finished watching an ad" callback.
type AdCompletion struct {
	AccountID string
	EventID   string
}

// AdRewardService turns ad completions into Earn calls, one per event id.
type AdRewardService struct {
	ledger *Ledger
	dedup  Deduper
	reward int64
	logger zerolog.Logger
}

func NewAdRewardService(ledger *Ledger, dedup Deduper, rewardUnits int64, logger zerolog.Logger) *AdRewardService {
	return &AdRewardService{
		ledger: ledger,
		dedup:  dedup,
		reward: rewardUnits,
		logger: logging.Component(logger, "ad-reward"),
	}
}

func (s *AdRewardService) RewardUnits() int64 {
	return s.reward
}

// Complete credits the configured reward for c. A replayed event id returns
// ErrDuplicateAdEvent and leaves the balance alone. If the credit fails the
// claim is released so the ad SDK may report the event again.
func (s *AdRewardService) Complete(ctx context.Context, c AdCompletion) (EarnResult, error) {
	eventID := strings.TrimSpace(c.EventID)
	if eventID == "" {
		return EarnResult{}, invalidAmount("ad event id is required")
	}
	if strings.TrimSpace(c.AccountID) == "" {
		return EarnResult{}, invalidAmount("account id is required")
	}

	log := logging.FromContext(ctx, s.logger).With().
		Str("account_id", c.AccountID).
		Str("ad_event_id", eventID).
		Logger()

	claimed, err := s.dedup.Claim(ctx, eventID)
	if err != nil {
		return EarnResult{}, storeUnavailable("claim ad event", err)
	}
	if !claimed {
		log.Info().Msg("duplicate ad completion ignored")
		return EarnResult{}, ErrDuplicateAdEvent
	}

	result, err := s.ledger.Earn(ctx, c.AccountID, s.reward)
	if err != nil {
		if relErr := s.dedup.Release(context.WithoutCancel(ctx), eventID); relErr != nil {
			log.Warn().Err(relErr).Msg("release ad event claim failed")
		}
		return EarnResult{}, err
	}

	log.Info().Int64("reward", s.reward).Int64("balance", result.Balance).Msg("ad reward credited")
	return result, nil
}
