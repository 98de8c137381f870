package model

import (
	"time"
)

// FeatureGrant is a temporary unlock of one feature for one account.
//
// There is at most one row per (account_id, feature): a new spend overwrites
// ExpiresAt. Rows are not deleted on expiry; readers must call Active.
type FeatureGrant struct {
	AccountID string    `gorm:"type:varchar(64);primaryKey" json:"account_id"`
	Feature   string    `gorm:"type:varchar(64);primaryKey" json:"feature"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FeatureGrant) TableName() string {
	return "feature_grant"
}

// Active reports whether the grant still unlocks the feature at now.
func (g *FeatureGrant) Active(now time.Time) bool {
	return g != nil && now.Before(g.ExpiresAt)
}
