package services

import (
	"context"
	"strings"

	"referral-engine/models"
	"referral-engine/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	referralCodeLength = 8
	maxCodeAttempts    = 5
)

type ReferralCodeRegistry struct {
	DB  *gorm.DB
	Log *zap.Logger
	Now Clock

	// generate is swapped in tests to force collisions.
	generate func() (string, error)
}

func NewReferralCodeRegistry(db *gorm.DB, log *zap.Logger) *ReferralCodeRegistry {
	return &ReferralCodeRegistry{
		DB:       db,
		Log:      log,
		Now:      systemClock,
		generate: func() (string, error) { return utils.RandomCode(referralCodeLength) },
	}
}

// GetOrCreate returns the owner's code, creating it on first use.
// Repeated and concurrent calls converge on the same row.
func (s *ReferralCodeRegistry) GetOrCreate(ctx context.Context, ownerUserID string) (*models.ReferralCode, error) {
	db := s.DB.WithContext(ctx)

	var existing models.ReferralCode
	err := db.Where("owner_user_id = ?", ownerUserID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "load referral code")
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, errors.Wrap(err, "generate referral code")
		}

		row := models.ReferralCode{
			ID:          uuid.NewString(),
			OwnerUserID: ownerUserID,
			Code:        code,
			CreatedAt:   s.Now(),
		}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return nil, errors.Wrap(res.Error, "insert referral code")
		}
		if res.RowsAffected == 1 {
			s.Log.Info("🔗 referral code issued", zap.String("owner", ownerUserID), zap.String("code", code))
			return &row, nil
		}

		// Nothing inserted: either another request created the owner's code
		// first, or the random code is taken by someone else.
		var winner models.ReferralCode
		err = db.Where("owner_user_id = ?", ownerUserID).First(&winner).Error
		if err == nil {
			return &winner, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(err, "reload referral code")
		}
		s.Log.Warn("referral code collision, retrying", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return nil, ErrCodeExhausted
}

// Lookup resolves a share code. Input is matched case-insensitively.
func (s *ReferralCodeRegistry) Lookup(ctx context.Context, code string) (*models.ReferralCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidCode
	}
	var row models.ReferralCode
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup referral code")
	}
	return &row, nil
}
