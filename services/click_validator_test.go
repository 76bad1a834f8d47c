package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"referral-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordClickMonthlyCap(t *testing.T) {
	e := newEngine(t)
	r := e.refer(t, "referrer", "provider")
	e.seedClicks(t, r.ID, 24, baseTime.Add(-2*time.Hour))

	assert.True(t, e.click(t, "provider", "visitor-25"), "25th click of the month is valid")
	assert.False(t, e.click(t, "provider", "visitor-26"), "26th click breaks the cap")

	var last models.ReferralClick
	require.NoError(t, e.db.Where("referral_id = ?", r.ID).Order("clicked_at DESC, id").
		Where("is_valid = ?", false).First(&last).Error)
	assert.Equal(t, models.ClickRejectMonthlyCap, last.InvalidReason)
	assert.Equal(t, "2026-10", last.MonthYear)

	assert.EqualValues(t, 25, e.countClicks(t, r.ID, true))
	assert.EqualValues(t, 1, e.countClicks(t, r.ID, false))

	// A new month opens a new bucket.
	e.clock.now = time.Date(2026, 11, 1, 0, 0, 1, 0, time.UTC)
	assert.True(t, e.click(t, "provider", "visitor-27"))
}

func TestRecordClickCooldown(t *testing.T) {
	e := newEngine(t)
	r := e.refer(t, "referrer", "provider")

	assert.True(t, e.click(t, "provider", "visitor-v"), "t=0")
	e.clock.Advance(3 * time.Minute)
	assert.False(t, e.click(t, "provider", "visitor-v"), "t=3min inside cooldown")
	e.clock.Advance(3 * time.Minute)
	assert.True(t, e.click(t, "provider", "visitor-v"), "t=6min cooldown elapsed")

	assert.EqualValues(t, 2, e.countClicks(t, r.ID, true))
	assert.EqualValues(t, 1, e.countClicks(t, r.ID, false))

	var rejected models.ReferralClick
	require.NoError(t, e.db.Where("referral_id = ? AND is_valid = ?", r.ID, false).First(&rejected).Error)
	assert.Equal(t, models.ClickRejectCooldown, rejected.InvalidReason)
}

func TestRecordClickCooldownIsPerReferral(t *testing.T) {
	e := newEngine(t)
	e.refer(t, "referrer", "provider-a")
	e.refer(t, "referrer", "provider-b")

	assert.True(t, e.click(t, "provider-a", "visitor-v"))
	assert.True(t, e.click(t, "provider-b", "visitor-v"))
	assert.False(t, e.click(t, "provider-a", "visitor-v"))
}

func TestRecordClickPrefersCustomerIdentity(t *testing.T) {
	e := newEngine(t)
	r := e.refer(t, "referrer", "provider")

	in := ClickInput{ReferredUserID: "provider", CustomerUserID: "customer-1", VisitorID: "visitor-a"}
	valid, err := e.clicks.RecordClick(ctx(), in)
	require.NoError(t, err)
	assert.True(t, valid)

	// Same customer, different device: still on cooldown.
	in.VisitorID = "visitor-b"
	valid, err = e.clicks.RecordClick(ctx(), in)
	require.NoError(t, err)
	assert.False(t, valid)

	var stored models.ReferralClick
	require.NoError(t, e.db.Where("referral_id = ? AND is_valid = ?", r.ID, true).First(&stored).Error)
	require.NotNil(t, stored.CustomerUserID)
	assert.Equal(t, "customer-1", *stored.CustomerUserID)
	require.NotNil(t, stored.VisitorID)
	assert.Equal(t, "visitor-a", *stored.VisitorID)
}

func TestRecordClickWithoutReferral(t *testing.T) {
	e := newEngine(t)

	assert.True(t, e.click(t, "unreferred-provider", "visitor-1"))

	var n int64
	require.NoError(t, e.db.Model(&models.ReferralClick{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRecordClickMissingIdentity(t *testing.T) {
	e := newEngine(t)
	e.refer(t, "referrer", "provider")

	valid, err := e.clicks.RecordClick(ctx(), ClickInput{ReferredUserID: "provider", VisitorID: "   "})
	assert.ErrorIs(t, err, ErrMissingIdentity)
	assert.False(t, valid)

	var n int64
	require.NoError(t, e.db.Model(&models.ReferralClick{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRecordClickSelfClick(t *testing.T) {
	e := newEngine(t)
	r := e.refer(t, "referrer", "provider")

	for _, who := range []string{"referrer", "provider"} {
		valid, err := e.clicks.RecordClick(ctx(), ClickInput{ReferredUserID: "provider", CustomerUserID: who})
		require.NoError(t, err)
		assert.False(t, valid, who)
	}
	assert.EqualValues(t, 2, e.countClicks(t, r.ID, false))

	var rejected []models.ReferralClick
	require.NoError(t, e.db.Where("referral_id = ?", r.ID).Find(&rejected).Error)
	for _, c := range rejected {
		assert.Equal(t, models.ClickRejectSelfClick, c.InvalidReason)
	}
}

func TestRecordClickNeverExceedsCap(t *testing.T) {
	e := newEngine(t)
	r := e.refer(t, "referrer", "provider")

	for i := 0; i < 40; i++ {
		e.click(t, "provider", fmt.Sprintf("visitor-%d", i))
		e.clock.Advance(time.Second)
	}
	var n int64
	require.NoError(t, e.db.Model(&models.ReferralClick{}).
		Where("referral_id = ? AND month_year = ? AND is_valid = ?", r.ID, "2026-10", true).
		Count(&n).Error)
	assert.EqualValues(t, MonthlyValidClickCap, n)
	assert.EqualValues(t, 15, e.countClicks(t, r.ID, false))
}

func TestConcurrentClicksRespectMonthlyCap(t *testing.T) {
	e := newEngine(t)
	r := e.refer(t, "referrer", "provider")
	e.seedClicks(t, r.ID, MonthlyValidClickCap-1, baseTime.Add(-2*time.Hour))

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		valid int
		errs  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := e.clicks.RecordClick(ctx(), ClickInput{
				ReferredUserID: "provider",
				VisitorID:      fmt.Sprintf("visitor-%d", i),
				IP:             "203.0.113.7",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				valid++
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, valid)
	assert.EqualValues(t, MonthlyValidClickCap, e.countClicks(t, r.ID, true))
	assert.EqualValues(t, workers-1, e.countClicks(t, r.ID, false))
}

func TestRecordClickSanitisesAuditText(t *testing.T) {
	e := newEngine(t)
	r := e.refer(t, "referrer", "provider")

	agent := strings.Repeat("a", maxUserAgentBytes-1) + "é"
	valid, err := e.clicks.RecordClick(ctx(), ClickInput{
		ReferredUserID: "provider",
		VisitorID:      "visitor-1",
		IP:             "10.0.0.\xff",
		UserAgent:      agent,
	})
	require.NoError(t, err)
	assert.True(t, valid)

	var stored models.ReferralClick
	require.NoError(t, e.db.Where("referral_id = ?", r.ID).First(&stored).Error)
	assert.True(t, utf8.ValidString(stored.UserAgent))
	assert.Equal(t, strings.Repeat("a", maxUserAgentBytes-1), stored.UserAgent)
	assert.True(t, utf8.ValidString(stored.IP))
	assert.Equal(t, "10.0.0.\uFFFD", stored.IP)
}

func TestAuditText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "curl/8.0", 64, "curl/8.0"},
		{"cut", "abcdef", 4, "abcd"},
		{"rune boundary", "abcé", 4, "abc"},
		{"invalid bytes", "a\xffb", 64, "a\uFFFDb"},
		{"empty", "", 8, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := auditText(tc.in, tc.max)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tc.max)
		})
	}
}
