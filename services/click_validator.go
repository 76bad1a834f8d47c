package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"referral-engine/metrics"
	"referral-engine/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MonthlyValidClickCap = 25
	ClickCooldown        = 5 * time.Minute

	maxIPBytes        = 64
	maxUserAgentBytes = 1024
)

// ClickInput is one public profile view of a referred provider.
type ClickInput struct {
	ReferredUserID string
	CustomerUserID string // authenticated viewer, preferred identity
	VisitorID      string // anonymous client id, soft signal only
	IP             string
	UserAgent      string
}

// identity returns the column and value the cooldown is keyed on.
func (in ClickInput) identity() (column, value string, ok bool) {
	if in.CustomerUserID != "" {
		return "customer_user_id", in.CustomerUserID, true
	}
	if in.VisitorID != "" {
		return "visitor_id", in.VisitorID, true
	}
	return "", "", false
}

type ClickValidator struct {
	DB      *gorm.DB
	Log     *zap.Logger
	Now     Clock
	Rewards *RewardEngine
}

func NewClickValidator(db *gorm.DB, log *zap.Logger, rewards *RewardEngine) *ClickValidator {
	return &ClickValidator{DB: db, Log: log, Now: systemClock, Rewards: rewards}
}

// RecordClick validates and stores a profile visit. A visit to a provider
// without an attributable referral is reported valid and nothing is stored.
// Every attributable visit is stored, valid or not, for audit.
func (v *ClickValidator) RecordClick(ctx context.Context, in ClickInput) (bool, error) {
	in.CustomerUserID = strings.TrimSpace(in.CustomerUserID)
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	idColumn, idValue, ok := in.identity()
	if !ok {
		return false, ErrMissingIdentity
	}

	var (
		referral *models.Referral
		click    models.ReferralClick
	)
	err := v.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		referral, err = attributableReferral(tx, in.ReferredUserID)
		if err != nil || referral == nil {
			return err
		}

		// Serialise cap and cooldown checks per referral.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", referral.ID).
			First(referral).Error; err != nil {
			return err
		}

		now := v.Now()
		bucket := models.MonthBucket(now)

		var monthly int64
		if err := tx.Model(&models.ReferralClick{}).
			Where("referral_id = ? AND month_year = ? AND is_valid = ?", referral.ID, bucket, true).
			Count(&monthly).Error; err != nil {
			return err
		}

		var recent int64
		if err := tx.Model(&models.ReferralClick{}).
			Where("referral_id = ? AND is_valid = ? AND clicked_at > ?", referral.ID, true, now.Add(-ClickCooldown)).
			Where(idColumn+" = ?", idValue).
			Count(&recent).Error; err != nil {
			return err
		}

		reason := models.ClickAccepted
		switch {
		case monthly >= MonthlyValidClickCap:
			reason = models.ClickRejectMonthlyCap
		case recent >= 1:
			reason = models.ClickRejectCooldown
		case in.CustomerUserID != "" &&
			(in.CustomerUserID == referral.ReferrerUserID || in.CustomerUserID == referral.ReferredUserID):
			reason = models.ClickRejectSelfClick
		}

		click = models.ReferralClick{
			ID:            uuid.NewString(),
			ReferralID:    referral.ID,
			IP:            auditText(in.IP, maxIPBytes),
			UserAgent:     auditText(in.UserAgent, maxUserAgentBytes),
			ClickedAt:     now,
			IsValid:       reason == models.ClickAccepted,
			InvalidReason: reason,
			MonthYear:     bucket,
		}
		if in.CustomerUserID != "" {
			click.CustomerUserID = &in.CustomerUserID
		}
		if in.VisitorID != "" {
			click.VisitorID = &in.VisitorID
		}
		return tx.Create(&click).Error
	})
	if err != nil {
		return false, errors.Wrap(err, "record click")
	}
	if referral == nil {
		return true, nil
	}

	outcome := "valid"
	if !click.IsValid {
		outcome = string(click.InvalidReason)
	}
	metrics.ClicksRecorded.WithLabelValues(outcome).Inc()

	if click.IsValid && v.Rewards != nil {
		if _, err := v.Rewards.Evaluate(ctx, referral.ReferrerUserID, referral.ID); err != nil {
			metrics.EvaluationFailures.Inc()
			v.Log.Error("reward evaluation failed after valid click",
				zap.String("referral_id", referral.ID),
				zap.String("referrer", referral.ReferrerUserID),
				zap.Error(err))
		}
	}
	return click.IsValid, nil
}

// auditText makes client-supplied text safe for a text column: invalid
// UTF-8 is replaced and the result is cut to at most n bytes on a rune
// boundary.
func auditText(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
