package subscription

import (
	"context"
	"errors"

	"rewardledger/internal/model"

	"gorm.io/gorm"
)

// GormProvider reads the subscription table kept up to date by billing.
type GormProvider struct {
	db *gorm.DB
}

func NewGormProvider(db *gorm.DB) *GormProvider {
	return &GormProvider{db: db}
}

func (p *GormProvider) Status(ctx context.Context, accountID string) (model.Subscription, error) {
	var sub model.Subscription
	err := p.db.WithContext(ctx).Where("account_id = ?", accountID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Subscription{AccountID: accountID}, nil
		}
		return model.Subscription{}, err
	}
	return sub, nil
}
