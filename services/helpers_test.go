package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"referral-engine/models"
	"referral-engine/storage/storagetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type engine struct {
	db        *gorm.DB
	clock     *testClock
	codes     *ReferralCodeRegistry
	ledger    *ReferralLedger
	rewards   *RewardEngine
	clicks    *ClickValidator
	claims    *ClaimTokenService
	dashboard *DashboardService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db := storagetest.NewDB(t)
	log := zap.NewNop()
	clock := &testClock{now: baseTime}

	codes := NewReferralCodeRegistry(db, log)
	codes.Now = clock.Now
	ledger := NewReferralLedger(db, log, codes)
	ledger.Now = clock.Now
	rewards := NewRewardEngine(db, log)
	rewards.Now = clock.Now
	clicks := NewClickValidator(db, log, rewards)
	clicks.Now = clock.Now
	claims := NewClaimTokenService(db, log)
	claims.Now = clock.Now
	dashboard := NewDashboardService(db)
	dashboard.Now = clock.Now

	return &engine{
		db: db, clock: clock, codes: codes, ledger: ledger,
		rewards: rewards, clicks: clicks, claims: claims, dashboard: dashboard,
	}
}

// refer creates referrer's code and a referral for referred, returning the referral.
func (e *engine) refer(t *testing.T, referrer, referred string) models.Referral {
	t.Helper()
	code, err := e.codes.GetOrCreate(ctx(), referrer)
	require.NoError(t, err)
	id, err := e.ledger.Create(ctx(), code.Code, referred)
	require.NoError(t, err)

	var r models.Referral
	require.NoError(t, e.db.First(&r, "id = ?", id).Error)
	return r
}

// seedClicks writes n valid clicks from distinct visitors straight to the
// table, bypassing validation, all at the given instant.
func (e *engine) seedClicks(t *testing.T, referralID string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		visitor := fmt.Sprintf("seed-%s", uuid.NewString())
		require.NoError(t, e.db.Create(&models.ReferralClick{
			ID:         uuid.NewString(),
			ReferralID: referralID,
			VisitorID:  &visitor,
			IP:         "10.0.0.1",
			UserAgent:  "seed",
			ClickedAt:  at,
			IsValid:    true,
			MonthYear:  models.MonthBucket(at),
		}).Error)
	}
}

// seedToThreshold leaves a referral one valid click short of the
// individual threshold without breaking the monthly cap: 25 last month and
// 24 in the current one.
func (e *engine) seedToThreshold(t *testing.T, referralID string) {
	t.Helper()
	e.seedClicks(t, referralID, MonthlyValidClickCap, baseTime.AddDate(0, -1, -4))
	e.seedClicks(t, referralID, IndividualClickThreshold-MonthlyValidClickCap-1, baseTime.Add(-time.Hour))
}

func (e *engine) click(t *testing.T, referred, visitor string) bool {
	t.Helper()
	valid, err := e.clicks.RecordClick(ctx(), ClickInput{
		ReferredUserID: referred,
		VisitorID:      visitor,
		IP:             "203.0.113.7",
		UserAgent:      "Mozilla/5.0",
	})
	require.NoError(t, err)
	return valid
}

func (e *engine) rewardsOf(t *testing.T, referrer string, typ models.RewardType) []models.ReferralReward {
	t.Helper()
	var out []models.ReferralReward
	require.NoError(t, e.db.Where("referrer_user_id = ? AND reward_type = ?", referrer, typ).Find(&out).Error)
	return out
}

func (e *engine) countClicks(t *testing.T, referralID string, valid bool) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.ReferralClick{}).
		Where("referral_id = ? AND is_valid = ?", referralID, valid).Count(&n).Error)
	return n
}

func ctx() context.Context { return context.Background() }
