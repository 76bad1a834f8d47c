package models

import "time"

// ReferralCode is the stable share code of a referrer. One per owner, never removed.
type ReferralCode struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerUserID string    `gorm:"uniqueIndex;not null" json:"owner_user_id"` // ExternalUserID
	Code        string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"code"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
