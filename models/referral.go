package models

import "time"

type ReferralStatus string

const (
	ReferralStatusPending  ReferralStatus = "pending"
	ReferralStatusActive   ReferralStatus = "active"
	ReferralStatusInactive ReferralStatus = "inactive"
)

// AttributableStatuses are the referral states that still collect clicks.
var AttributableStatuses = []ReferralStatus{ReferralStatusActive, ReferralStatusPending}

// Referral tracks a referrer → referred provider relationship
type Referral struct {
	ID             string         `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerUserID string         `gorm:"uniqueIndex:idx_referral_pair;not null" json:"referrer_user_id"` // ExternalUserID
	ReferredUserID string         `gorm:"uniqueIndex:idx_referral_pair;index;not null" json:"referred_user_id"`
	Code           string         `gorm:"type:varchar(16);not null" json:"code"`
	Status         ReferralStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ActivatedAt    *time.Time     `json:"activated_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}
