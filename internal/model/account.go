package model

import (
	"time"
)

// UnitBalance holds the reward-unit balance of one account.
// Units is never negative; only the ledger service writes it.
type UnitBalance struct {
	AccountID string    `gorm:"type:varchar(64);primaryKey" json:"account_id"`
	Units     int64     `gorm:"not null;default:0" json:"units"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UnitBalance) TableName() string {
	return "unit_balance"
}
