package models

import "time"

type ClaimTokenStatus string

const (
	ClaimTokenPending ClaimTokenStatus = "pending"
	ClaimTokenClaimed ClaimTokenStatus = "claimed"
	ClaimTokenExpired ClaimTokenStatus = "expired"
)

// ClaimToken = one-time credential that converts an earned reward into credit
type ClaimToken struct {
	ID             string           `gorm:"primaryKey;type:uuid" json:"id"`
	RewardID       string           `gorm:"type:uuid;not null;index" json:"reward_id"`
	ReferrerUserID string           `gorm:"not null;index" json:"referrer_user_id"`
	Token          string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	Status         ClaimTokenStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ExpiresAt      time.Time        `gorm:"not null;index" json:"expires_at"`
	ClaimedAt      *time.Time       `json:"claimed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at" gorm:"autoCreateTime"`
}
