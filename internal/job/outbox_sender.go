package job

import (
	"context"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/metrics"
	"rewardledger/internal/infrastructure/mq"
	"rewardledger/internal/logging"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"

	"github.com/rs/zerolog"
)

// OutboxSender relays ledger events committed to the outbox table.
// Delivery is at least once; consumers dedupe on transaction_no.
type OutboxSender struct {
	outbox     repository.OutboxStore
	publisher  mq.Publisher
	logger     zerolog.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxSender(outbox repository.OutboxStore, publisher mq.Publisher, cfg *config.JobsConfig, logger zerolog.Logger) *OutboxSender {
	return &OutboxSender{
		outbox:     outbox,
		publisher:  publisher,
		logger:     logging.Component(logger, "outbox-sender"),
		stopCh:     make(chan struct{}),
		interval:   cfg.OutboxInterval,
		batchSize:  cfg.OutboxBatchSize,
		maxRetries: cfg.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("context done, outbox sender exiting")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("outbox sender stopped")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending publishes one batch and returns how many were sent.
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outbox.PendingOutbox(ctx, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("load pending outbox messages failed")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	log := s.logger.With().Int64("id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Logger()

	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxMessage("sent")
		if updateErr := s.outbox.MarkOutboxSent(ctx, msg.ID); updateErr != nil {
			// the message will be published again next tick
			log.Error().Err(updateErr).Msg("mark outbox message sent failed")
			return true
		}
		log.Debug().Str("event_type", msg.EventType).Msg("outbox message sent")
		return true
	}

	log.Warn().Err(err).Int("retry_count", msg.RetryCount).Msg("publish outbox message failed")

	if msg.RetryCount+1 >= s.maxRetries {
		metrics.OutboxMessage("failed")
		if err := s.outbox.MarkOutboxFailed(ctx, msg.ID); err != nil {
			log.Error().Err(err).Msg("mark outbox message failed failed")
		} else {
			log.Error().Msg("outbox message exceeded max retries, marked failed")
		}
		return false
	}

	metrics.OutboxMessage("retry")
	if err := s.outbox.IncrementOutboxRetry(ctx, msg.ID); err != nil {
		log.Error().Err(err).Msg("increment outbox retry count failed")
	}
	return false
}
