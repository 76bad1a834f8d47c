package models

import "time"

// RewardType is the kind of milestone reward earned by a referrer
type RewardType string

const (
	RewardTypeSMS30           RewardType = "sms_30"
	RewardTypeFreeNormalMonth RewardType = "free_normal_month"
	RewardTypeFreeProMonth    RewardType = "free_pro_month"
)

type RewardStatus string

const (
	RewardStatusEarned  RewardStatus = "earned"
	RewardStatusApplied RewardStatus = "applied"
	RewardStatusExpired RewardStatus = "expired"
)

// AggregateScope is the ScopeKey of rewards that are not tied to a single referral.
const AggregateScope = "aggregate"

// ReferralReward is written only by the reward engine. ScopeKey mirrors
// ReferralID (or AggregateScope when it is nil) so the unique index treats a
// missing referral as a value instead of a NULL.
type ReferralReward struct {
	ID             string       `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerUserID string       `gorm:"not null;uniqueIndex:idx_reward_scope" json:"referrer_user_id"`
	RewardType     RewardType   `gorm:"type:varchar(32);not null;uniqueIndex:idx_reward_scope" json:"reward_type"`
	ScopeKey       string       `gorm:"type:varchar(64);not null;uniqueIndex:idx_reward_scope" json:"-"`
	ReferralID     *string      `gorm:"type:uuid;index" json:"referral_id,omitempty"`
	RewardValue    int          `gorm:"not null" json:"reward_value"`
	ClicksRequired int64        `gorm:"not null" json:"clicks_required"`
	ClicksAchieved int64        `gorm:"not null" json:"clicks_achieved"`
	IsAggregate    bool         `gorm:"not null;default:false" json:"is_aggregate"`
	Status         RewardStatus `gorm:"type:varchar(16);not null;default:'earned';index" json:"status"`
	EarnedAt       time.Time    `gorm:"not null" json:"earned_at"`
	AppliedAt      *time.Time   `json:"applied_at,omitempty"`
	ExpiresAt      time.Time    `gorm:"not null;index" json:"expires_at"`
}

// EffectiveStatus folds lazy expiry into the stored status. A reward is
// expired from its expires_at instant on.
func (r ReferralReward) EffectiveStatus(now time.Time) RewardStatus {
	if r.Status == RewardStatusEarned && !now.Before(r.ExpiresAt) {
		return RewardStatusExpired
	}
	return r.Status
}
