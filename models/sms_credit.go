package models

import "time"

// SMSCredit is an SMS allowance granted to a provider account.
// RewardID is unique so that a reward can only ever fund one grant.
type SMSCredit struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	RewardID  string    `gorm:"type:uuid;uniqueIndex;not null" json:"reward_id"`
	Amount    int       `gorm:"not null" json:"amount"`
	Source    string    `gorm:"type:varchar(32);not null" json:"source"` // e.g. "referral_reward"
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// AllModels lists every table owned by the engine, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&ReferralCode{},
		&Referral{},
		&ReferralClick{},
		&ReferralReward{},
		&ClaimToken{},
		&SMSCredit{},
	}
}
