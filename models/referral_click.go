package models

import "time"

type ClickRejection string

const (
	ClickAccepted         ClickRejection = ""
	ClickRejectMonthlyCap ClickRejection = "monthly_cap"
	ClickRejectCooldown   ClickRejection = "cooldown"
	ClickRejectSelfClick  ClickRejection = "self_click"
)

// ReferralClick is one attributable profile visit. Rows are append-only:
// IsValid is decided once at insert and never revised.
type ReferralClick struct {
	ID             string         `gorm:"primaryKey;type:uuid" json:"id"`
	ReferralID     string         `gorm:"type:uuid;not null;index:idx_click_referral_month" json:"referral_id"`
	CustomerUserID *string        `gorm:"index" json:"customer_user_id,omitempty"`
	VisitorID      *string        `gorm:"type:varchar(128);index" json:"visitor_id,omitempty"` // client generated, spoofable
	IP             string         `gorm:"type:varchar(64)" json:"ip"`
	UserAgent      string         `gorm:"type:varchar(1024)" json:"user_agent"`
	ClickedAt      time.Time      `gorm:"not null;index" json:"clicked_at"`
	IsValid        bool           `gorm:"not null;index:idx_click_referral_month" json:"is_valid"`
	InvalidReason  ClickRejection `gorm:"type:varchar(16)" json:"invalid_reason,omitempty"`
	MonthYear      string         `gorm:"type:varchar(7);not null;index:idx_click_referral_month" json:"month_year"` // YYYY-MM, UTC
}

// MonthBucket returns the monthly cap bucket a timestamp falls into.
func MonthBucket(t time.Time) string {
	return t.UTC().Format("2006-01")
}
