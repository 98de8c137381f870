package model

import (
	"time"
)

const (
	TransactionTypeEarn  = "EARN"
	TransactionTypeSpend = "SPEND"
)

// UnitTransaction is the unit journal.
//
// Rules:
//  1. append only, never updated or deleted
//  2. written in the same database transaction as the balance change
//  3. records balance before and after so the balance can be reconciled
type UnitTransaction struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID     string     `gorm:"type:varchar(64);index;not null" json:"account_id"`
	Type          string     `gorm:"type:varchar(20);not null" json:"type"`
	Amount        int64      `gorm:"not null" json:"amount"` // positive for EARN, negative for SPEND
	BalanceBefore int64      `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64      `gorm:"not null" json:"balance_after"`
	Feature       string     `gorm:"type:varchar(64)" json:"feature,omitempty"`
	GrantExpires  *time.Time `json:"grant_expires_at,omitempty"`
	Remark        string     `gorm:"type:varchar(256)" json:"remark,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (UnitTransaction) TableName() string {
	return "unit_transaction"
}
