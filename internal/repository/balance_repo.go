package repository

import (
	"context"
	"errors"

	"rewardledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Get returns the balance, or 0 when the account has no row yet.
func (r *BalanceRepository) Get(ctx context.Context, tx *gorm.DB, accountID string) (int64, error) {
	var balance model.UnitBalance
	err := r.conn(tx).WithContext(ctx).Where("account_id = ?", accountID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return balance.Units, nil
}

// GetForUpdate reads the balance with a row lock held until tx ends.
// sqlite has no row locks; its single writer connection serializes instead.
func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, accountID string) (int64, error) {
	var balance model.UnitBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return balance.Units, nil
}

// Set upserts the balance row. The first Earn creates it.
func (r *BalanceRepository) Set(ctx context.Context, tx *gorm.DB, accountID string, units int64) error {
	if units < 0 {
		return ErrNegativeBalance
	}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"units", "updated_at"}),
		}).
		Create(&model.UnitBalance{AccountID: accountID, Units: units}).Error
}
