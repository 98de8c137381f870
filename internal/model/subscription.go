package model

import (
	"time"
)

// Subscription mirrors the billing system's view of an account.
// This service only reads it.
type Subscription struct {
	AccountID       string     `gorm:"type:varchar(64);primaryKey" json:"account_id"`
	IsSubscriber    bool       `gorm:"not null;default:false" json:"is_subscriber"`
	SubscriberUntil *time.Time `json:"subscriber_until,omitempty"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// ActiveAt reports whether the subscription entitles the account at now.
// A cancelled subscription stays active until SubscriberUntil passes.
func (s Subscription) ActiveAt(now time.Time) bool {
	if !s.IsSubscriber {
		return false
	}
	return s.SubscriberUntil == nil || now.Before(*s.SubscriberUntil)
}
