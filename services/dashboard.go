package services

import (
	"context"
	"time"

	"referral-engine/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ReferralStats struct {
	ReferralID       string                `json:"referral_id"`
	ReferredUserID   string                `json:"referred_user_id"`
	Status           models.ReferralStatus `json:"status"`
	CreatedAt        time.Time             `json:"created_at"`
	ActivatedAt      *time.Time            `json:"activated_at,omitempty"`
	ValidClicks      int64                 `json:"valid_clicks"`
	MonthValidClicks int64                 `json:"month_valid_clicks"`
	MonthlyCap       int                   `json:"monthly_cap"`
	Qualifying       bool                  `json:"qualifying"`
}

type TierProgress struct {
	RewardType          models.RewardType `json:"reward_type"`
	ClicksRequired      int64             `json:"clicks_required"`
	ReferralsRequired   int               `json:"referrals_required"`
	QualifyingClicks    int64             `json:"qualifying_clicks"`
	QualifyingReferrals int               `json:"qualifying_referrals"`
	Earned              bool              `json:"earned"`
}

type RewardView struct {
	models.ReferralReward
	EffectiveStatus models.RewardStatus `json:"effective_status"`
}

type DashboardView struct {
	ReferrerUserID string          `json:"referrer_user_id"`
	Code           string          `json:"code,omitempty"`
	MonthYear      string          `json:"month_year"`
	Referrals      []ReferralStats `json:"referrals"`
	Rewards        []RewardView    `json:"rewards"`
	Tiers          []TierProgress  `json:"tiers"`
}

// DashboardService is a read-only projection over the engine tables.
type DashboardService struct {
	DB  *gorm.DB
	Now Clock
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{DB: db, Now: systemClock}
}

func (s *DashboardService) Dashboard(ctx context.Context, referrerUserID string) (*DashboardView, error) {
	db := s.DB.WithContext(ctx)
	now := s.Now()
	view := &DashboardView{
		ReferrerUserID: referrerUserID,
		MonthYear:      models.MonthBucket(now),
		Referrals:      []ReferralStats{},
		Rewards:        []RewardView{},
	}

	var code models.ReferralCode
	err := db.Where("owner_user_id = ?", referrerUserID).First(&code).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "load referral code")
	}
	view.Code = code.Code

	var referrals []models.Referral
	if err := db.Where("referrer_user_id = ?", referrerUserID).
		Order("created_at DESC").
		Find(&referrals).Error; err != nil {
		return nil, errors.Wrap(err, "load referrals")
	}

	ids := make([]string, 0, len(referrals))
	for _, r := range referrals {
		ids = append(ids, r.ID)
	}

	lifetime := map[string]int64{}
	month := map[string]int64{}
	if len(ids) > 0 {
		type countRow struct {
			ReferralID string
			Clicks     int64
		}
		var rows []countRow
		if err := db.Model(&models.ReferralClick{}).
			Select("referral_id, COUNT(*) AS clicks").
			Where("referral_id IN ? AND is_valid = ?", ids, true).
			Group("referral_id").
			Scan(&rows).Error; err != nil {
			return nil, errors.Wrap(err, "count clicks")
		}
		for _, r := range rows {
			lifetime[r.ReferralID] = r.Clicks
		}

		rows = nil
		if err := db.Model(&models.ReferralClick{}).
			Select("referral_id, COUNT(*) AS clicks").
			Where("referral_id IN ? AND is_valid = ? AND month_year = ?", ids, true, view.MonthYear).
			Group("referral_id").
			Scan(&rows).Error; err != nil {
			return nil, errors.Wrap(err, "count monthly clicks")
		}
		for _, r := range rows {
			month[r.ReferralID] = r.Clicks
		}
	}

	snap := Snapshot{ReferrerUserID: referrerUserID, ClicksByReferral: map[string]int64{}}
	for _, r := range referrals {
		attributable := r.Status == models.ReferralStatusActive || r.Status == models.ReferralStatusPending
		if attributable {
			snap.ClicksByReferral[r.ID] = lifetime[r.ID]
		}
		view.Referrals = append(view.Referrals, ReferralStats{
			ReferralID:       r.ID,
			ReferredUserID:   r.ReferredUserID,
			Status:           r.Status,
			CreatedAt:        r.CreatedAt,
			ActivatedAt:      r.ActivatedAt,
			ValidClicks:      lifetime[r.ID],
			MonthValidClicks: month[r.ID],
			MonthlyCap:       MonthlyValidClickCap,
			Qualifying:       attributable && lifetime[r.ID] >= IndividualClickThreshold,
		})
	}

	var rewards []models.ReferralReward
	if err := db.Where("referrer_user_id = ?", referrerUserID).
		Order("earned_at DESC").
		Find(&rewards).Error; err != nil {
		return nil, errors.Wrap(err, "load rewards")
	}
	earned := map[models.RewardType]bool{}
	for _, r := range rewards {
		view.Rewards = append(view.Rewards, RewardView{ReferralReward: r, EffectiveStatus: r.EffectiveStatus(now)})
		if r.IsAggregate {
			earned[r.RewardType] = true
		}
	}

	q := snap.Qualify()
	for _, tier := range AggregateTiers {
		view.Tiers = append(view.Tiers, TierProgress{
			RewardType:          tier.RewardType,
			ClicksRequired:      tier.Clicks,
			ReferralsRequired:   tier.Referrals,
			QualifyingClicks:    q.QualifyingClicks,
			QualifyingReferrals: q.QualifyingReferrals,
			Earned:              earned[tier.RewardType],
		})
	}
	return view, nil
}
