package repository

import (
	"context"
	"fmt"
	"time"

	"rewardledger/internal/model"

	"gorm.io/gorm"
)

// OutboxRepository persists ledger events until the relay job has
// published them.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Enqueue writes msg as PENDING. Pass the ledger transaction as tx so the
// event commits or rolls back with the balance change it describes.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	return r.conn(tx).WithContext(ctx).Create(msg).Error
}

// Pending returns up to limit unsent events in commit order.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":  model.OutboxStatusSent,
		"sent_at": sentAt,
	})
}

func (r *OutboxRepository) BumpRetry(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]any{
		"retry_count": gorm.Expr("retry_count + 1"),
	})
}

// MarkFailed parks the event after its last publish attempt.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]any{
		"status":      model.OutboxStatusFailed,
		"retry_count": gorm.Expr("retry_count + 1"),
	})
}

func (r *OutboxRepository) update(ctx context.Context, id int64, columns map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("outbox message %d: %w", id, ErrOutboxMessageNotFound)
	}
	return nil
}
