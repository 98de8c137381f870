package repository

import (
	"context"
	"errors"
	"time"

	"rewardledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GrantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *GrantRepository) Get(ctx context.Context, tx *gorm.DB, accountID, feature string) (*model.FeatureGrant, error) {
	var grant model.FeatureGrant
	err := r.conn(tx).WithContext(ctx).
		Where("account_id = ? AND feature = ?", accountID, feature).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// Put overwrites the expiry of an existing grant instead of adding a row.
func (r *GrantRepository) Put(ctx context.Context, tx *gorm.DB, accountID, feature string, expiresAt time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "feature"}},
			DoUpdates: clause.AssignmentColumns([]string{"expires_at", "updated_at"}),
		}).
		Create(&model.FeatureGrant{AccountID: accountID, Feature: feature, ExpiresAt: expiresAt}).Error
}

func (r *GrantRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&model.FeatureGrant{})
	return result.RowsAffected, result.Error
}
