package service

import (
	"encoding/json"
	"time"

	"rewardledger/internal/model"
)

// LedgerEvent is the outbox payload published for every committed Earn and Spend.
type LedgerEvent struct {
	EventID       string     `json:"event_id"`
	EventType     string     `json:"event_type"`
	TransactionNo string     `json:"transaction_no"`
	AccountID     string     `json:"account_id"`
	Amount        int64      `json:"amount"`
	Balance       int64      `json:"balance"`
	Feature       string     `json:"feature,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func newOutboxMessage(topic string, event LedgerEvent) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	// keyed by account so one account's events land on one partition, in order
	return &model.OutboxMessage{
		MessageKey: event.AccountID,
		Topic:      topic,
		EventType:  event.EventType,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}, nil
}
