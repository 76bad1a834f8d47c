package services

import (
	"context"

	"referral-engine/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralLedger records who referred whom and where each relationship is in
// its lifecycle.
type ReferralLedger struct {
	DB    *gorm.DB
	Log   *zap.Logger
	Now   Clock
	Codes *ReferralCodeRegistry
}

func NewReferralLedger(db *gorm.DB, log *zap.Logger, codes *ReferralCodeRegistry) *ReferralLedger {
	return &ReferralLedger{DB: db, Log: log, Now: systemClock, Codes: codes}
}

// Create records that referredUserID signed up with code. Calling it again
// for the same pair returns the existing referral id.
func (l *ReferralLedger) Create(ctx context.Context, code, referredUserID string) (string, error) {
	owner, err := l.Codes.Lookup(ctx, code)
	if err != nil {
		return "", err
	}
	if owner.OwnerUserID == referredUserID {
		return "", ErrSelfReferral
	}

	db := l.DB.WithContext(ctx)
	row := models.Referral{
		ID:             uuid.NewString(),
		ReferrerUserID: owner.OwnerUserID,
		ReferredUserID: referredUserID,
		Code:           owner.Code,
		Status:         models.ReferralStatusPending,
		CreatedAt:      l.Now(),
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referrer_user_id"}, {Name: "referred_user_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "insert referral")
	}
	if res.RowsAffected == 1 {
		l.Log.Info("🤝 referral recorded",
			zap.String("referral_id", row.ID),
			zap.String("referrer", row.ReferrerUserID),
			zap.String("referred", referredUserID))
		return row.ID, nil
	}

	var existing models.Referral
	if err := db.Where("referrer_user_id = ? AND referred_user_id = ?", owner.OwnerUserID, referredUserID).
		First(&existing).Error; err != nil {
		return "", errors.Wrap(err, "reload referral")
	}
	return existing.ID, nil
}

// Activate moves every pending referral of referredUserID to active.
// Returns how many rows changed; zero is not an error.
func (l *ReferralLedger) Activate(ctx context.Context, referredUserID string) (int64, error) {
	now := l.Now()
	res := l.DB.WithContext(ctx).Model(&models.Referral{}).
		Where("referred_user_id = ? AND status = ?", referredUserID, models.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":       models.ReferralStatusActive,
			"activated_at": now,
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "activate referral")
	}
	if res.RowsAffected > 0 {
		l.Log.Info("✅ referral activated", zap.String("referred", referredUserID), zap.Int64("rows", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Deactivate stops attribution for a referred provider (e.g. account suspended).
func (l *ReferralLedger) Deactivate(ctx context.Context, referredUserID string) (int64, error) {
	res := l.DB.WithContext(ctx).Model(&models.Referral{}).
		Where("referred_user_id = ? AND status IN ?", referredUserID, models.AttributableStatuses).
		Update("status", models.ReferralStatusInactive)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "deactivate referral")
	}
	return res.RowsAffected, nil
}

// attributableReferral returns the oldest active/pending referral of a
// referred user, or nil when the visit is not attributable.
func attributableReferral(tx *gorm.DB, referredUserID string) (*models.Referral, error) {
	var r models.Referral
	err := tx.Where("referred_user_id = ? AND status IN ?", referredUserID, models.AttributableStatuses).
		Order("created_at ASC").
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
