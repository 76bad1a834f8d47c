package services

import (
	"context"

	"referral-engine/metrics"
	"referral-engine/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// rewardValidityMonths is how long an earned reward can be claimed.
const rewardValidityMonths = 6

type RewardEngine struct {
	DB  *gorm.DB
	Log *zap.Logger
	Now Clock
}

func NewRewardEngine(db *gorm.DB, log *zap.Logger) *RewardEngine {
	return &RewardEngine{DB: db, Log: log, Now: systemClock}
}

// Evaluate re-reads the referrer's click totals and issues every reward whose
// threshold is crossed and which does not exist yet. Running it again with
// no new clicks issues nothing. Returns the rewards created by this call.
func (e *RewardEngine) Evaluate(ctx context.Context, referrerUserID, referralID string) ([]models.ReferralReward, error) {
	db := e.DB.WithContext(ctx)

	snap, err := e.loadSnapshot(db, referrerUserID, referralID)
	if err != nil {
		return nil, errors.Wrap(err, "load click snapshot")
	}

	var issued []models.ReferralReward
	for _, m := range ComputeMilestones(*snap) {
		reward, created, err := e.issue(db, referrerUserID, m)
		if err != nil {
			return issued, errors.Wrapf(err, "issue %s", m.RewardType)
		}
		if created {
			issued = append(issued, *reward)
		}
	}
	return issued, nil
}

// loadSnapshot counts lifetime valid clicks for each attributable referral of
// the referrer, and separately for the trigger referral so that its
// individual reward is still evaluated if it left the attributable set.
func (e *RewardEngine) loadSnapshot(db *gorm.DB, referrerUserID, referralID string) (*Snapshot, error) {
	var ids []string
	if err := db.Model(&models.Referral{}).
		Where("referrer_user_id = ? AND status IN ?", referrerUserID, models.AttributableStatuses).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ReferrerUserID:    referrerUserID,
		ClicksByReferral:  make(map[string]int64, len(ids)),
		TriggerReferralID: referralID,
	}
	for _, id := range ids {
		snap.ClicksByReferral[id] = 0
	}

	queryIDs := ids
	if _, ok := snap.ClicksByReferral[referralID]; !ok && referralID != "" {
		queryIDs = append(queryIDs, referralID)
	}
	if len(queryIDs) == 0 {
		return snap, nil
	}

	var rows []struct {
		ReferralID string
		Clicks     int64
	}
	if err := db.Model(&models.ReferralClick{}).
		Select("referral_id, COUNT(*) AS clicks").
		Where("referral_id IN ? AND is_valid = ?", queryIDs, true).
		Group("referral_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.ReferralID == referralID {
			snap.TriggerClicks = r.Clicks
		}
		if _, ok := snap.ClicksByReferral[r.ReferralID]; ok {
			snap.ClicksByReferral[r.ReferralID] = r.Clicks
		}
	}
	return snap, nil
}

// issue writes the reward with a single conditional insert on the
// (referrer_user_id, reward_type, scope_key) unique index.
func (e *RewardEngine) issue(db *gorm.DB, referrerUserID string, m Milestone) (*models.ReferralReward, bool, error) {
	now := e.Now()
	reward := &models.ReferralReward{
		ID:             uuid.NewString(),
		ReferrerUserID: referrerUserID,
		RewardType:     m.RewardType,
		ScopeKey:       m.ScopeKey(),
		ReferralID:     m.ReferralID,
		RewardValue:    m.RewardValue,
		ClicksRequired: m.ClicksRequired,
		ClicksAchieved: m.ClicksAchieved,
		IsAggregate:    m.IsAggregate,
		Status:         models.RewardStatusEarned,
		EarnedAt:       now,
		ExpiresAt:      now.AddDate(0, rewardValidityMonths, 0),
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referrer_user_id"}, {Name: "reward_type"}, {Name: "scope_key"}},
		DoNothing: true,
	}).Create(reward)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	metrics.RewardsIssued.WithLabelValues(string(m.RewardType)).Inc()
	e.Log.Info("🏆 referral reward earned",
		zap.String("referrer", referrerUserID),
		zap.String("reward_type", string(m.RewardType)),
		zap.String("scope", reward.ScopeKey),
		zap.Int64("clicks_achieved", m.ClicksAchieved))
	return reward, true, nil
}
