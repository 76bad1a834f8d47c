package services

import (
	"context"
	"time"

	"referral-engine/metrics"
	"referral-engine/models"
	"referral-engine/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	claimTokenBytes    = 16
	claimTokenValidity = 7 * 24 * time.Hour
	smsCreditValidity  = 1 // years
	creditSourceReward = "referral_reward"
)

// CreditGrant is what a successful redemption added to the account.
type CreditGrant struct {
	CreditID  string            `json:"credit_id"`
	UserID    string            `json:"user_id"`
	RewardID  string            `json:"reward_id"`
	Type      models.RewardType `json:"reward_type"`
	Amount    int               `json:"amount"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type ClaimTokenService struct {
	DB  *gorm.DB
	Log *zap.Logger
	Now Clock
}

func NewClaimTokenService(db *gorm.DB, log *zap.Logger) *ClaimTokenService {
	return &ClaimTokenService{DB: db, Log: log, Now: systemClock}
}

// Issue hands out a one-time token for an earned sms_30 reward owned by the
// caller. An unexpired pending token for the same reward is reused.
func (s *ClaimTokenService) Issue(ctx context.Context, referrerUserID, rewardID string) (*models.ClaimToken, error) {
	if _, err := uuid.Parse(rewardID); err != nil {
		return nil, ErrNotFound
	}
	db := s.DB.WithContext(ctx)
	now := s.Now()

	var reward models.ReferralReward
	if err := db.Where("id = ? AND referrer_user_id = ?", rewardID, referrerUserID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "load reward")
	}
	if reward.RewardType != models.RewardTypeSMS30 {
		return nil, ErrRewardNotClaimable
	}
	switch reward.EffectiveStatus(now) {
	case models.RewardStatusApplied:
		return nil, ErrAlreadyClaimed
	case models.RewardStatusExpired:
		return nil, ErrRewardExpired
	}

	var pending models.ClaimToken
	err := db.Where("reward_id = ? AND status = ? AND expires_at > ?", reward.ID, models.ClaimTokenPending, now).
		Order("expires_at DESC").
		First(&pending).Error
	if err == nil {
		return &pending, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "load pending claim token")
	}

	secret, err := utils.RandomToken(claimTokenBytes)
	if err != nil {
		return nil, errors.Wrap(err, "generate claim token")
	}
	token := &models.ClaimToken{
		ID:             uuid.NewString(),
		RewardID:       reward.ID,
		ReferrerUserID: referrerUserID,
		Token:          secret,
		Status:         models.ClaimTokenPending,
		ExpiresAt:      now.Add(claimTokenValidity),
		CreatedAt:      now,
	}
	if err := db.Create(token).Error; err != nil {
		return nil, errors.Wrap(err, "insert claim token")
	}
	s.Log.Info("🎟️ claim token issued", zap.String("reward_id", reward.ID), zap.String("referrer", referrerUserID))
	return token, nil
}

// Redeem converts a pending token into SMS credit. Credit grant, token claim
// and reward application commit together or not at all; concurrent calls on
// the same token grant at most once.
func (s *ClaimTokenService) Redeem(ctx context.Context, token string) (*CreditGrant, error) {
	grant, err := s.redeem(ctx, token)
	metrics.Redemptions.WithLabelValues(redemptionResult(err)).Inc()
	return grant, err
}

func (s *ClaimTokenService) redeem(ctx context.Context, token string) (*CreditGrant, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	now := s.Now()
	var grant *CreditGrant

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ct models.ClaimToken
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ?", token).
			First(&ct).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		switch {
		case ct.Status == models.ClaimTokenClaimed:
			return ErrAlreadyClaimed
		case ct.Status == models.ClaimTokenExpired || !now.Before(ct.ExpiresAt):
			return ErrExpiredToken
		}

		// Compare-and-swap on the token: only one caller moves it off pending.
		res := tx.Model(&models.ClaimToken{}).
			Where("id = ? AND status = ?", ct.ID, models.ClaimTokenPending).
			Updates(map[string]interface{}{"status": models.ClaimTokenClaimed, "claimed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrAlreadyClaimed
		}

		var reward models.ReferralReward
		if err := tx.Where("id = ?", ct.RewardID).First(&reward).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		switch reward.EffectiveStatus(now) {
		case models.RewardStatusApplied:
			return ErrAlreadyClaimed
		case models.RewardStatusExpired:
			return ErrRewardExpired
		}

		res = tx.Model(&models.ReferralReward{}).
			Where("id = ? AND status = ?", reward.ID, models.RewardStatusEarned).
			Updates(map[string]interface{}{"status": models.RewardStatusApplied, "applied_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrAlreadyClaimed
		}

		credit := models.SMSCredit{
			ID:        uuid.NewString(),
			UserID:    reward.ReferrerUserID,
			RewardID:  reward.ID,
			Amount:    reward.RewardValue,
			Source:    creditSourceReward,
			ExpiresAt: now.AddDate(smsCreditValidity, 0, 0),
			CreatedAt: now,
		}
		if err := tx.Create(&credit).Error; err != nil {
			return err
		}

		grant = &CreditGrant{
			CreditID:  credit.ID,
			UserID:    credit.UserID,
			RewardID:  reward.ID,
			Type:      reward.RewardType,
			Amount:    credit.Amount,
			ExpiresAt: credit.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, "redeem claim token")
	}

	s.Log.Info("💬 SMS credit granted",
		zap.String("user", grant.UserID),
		zap.String("reward_id", grant.RewardID),
		zap.Int("amount", grant.Amount))
	return grant, nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidToken, ErrExpiredToken, ErrAlreadyClaimed, ErrNotFound, ErrRewardExpired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrExpiredToken), errors.Is(err, ErrRewardExpired):
		return "expired"
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNotFound):
		return "invalid"
	default:
		return "error"
	}
}
