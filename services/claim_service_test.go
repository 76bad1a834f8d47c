package services

import (
	"sync"
	"testing"
	"time"

	"referral-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// earnSMSReward drives a referral to its individual reward and returns it.
func (e *engine) earnSMSReward(t *testing.T, referrer, referred string) models.ReferralReward {
	t.Helper()
	r := e.refer(t, referrer, referred)
	e.seedClicks(t, r.ID, IndividualClickThreshold, baseTime.AddDate(0, -2, 0))
	issued, err := e.rewards.Evaluate(ctx(), referrer, r.ID)
	require.NoError(t, err)
	for _, reward := range issued {
		if reward.RewardType == models.RewardTypeSMS30 {
			return reward
		}
	}
	t.Fatalf("no sms_30 issued for %s", referred)
	return models.ReferralReward{}
}

func (e *engine) smsCredits(t *testing.T, user string) []models.SMSCredit {
	t.Helper()
	var out []models.SMSCredit
	require.NoError(t, e.db.Where("user_id = ?", user).Find(&out).Error)
	return out
}

func TestIssueAndRedeemOnce(t *testing.T) {
	e := newEngine(t)
	reward := e.earnSMSReward(t, "referrer", "provider")

	token, err := e.claims.Issue(ctx(), "referrer", reward.ID)
	require.NoError(t, err)
	assert.Len(t, token.Token, 2*claimTokenBytes)
	assert.Equal(t, models.ClaimTokenPending, token.Status)
	assert.True(t, token.ExpiresAt.Equal(baseTime.Add(7*24*time.Hour)))

	grant, err := e.claims.Redeem(ctx(), token.Token)
	require.NoError(t, err)
	assert.Equal(t, "referrer", grant.UserID)
	assert.Equal(t, 30, grant.Amount)
	assert.True(t, grant.ExpiresAt.Equal(baseTime.AddDate(1, 0, 0)))

	_, err = e.claims.Redeem(ctx(), token.Token)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Len(t, e.smsCredits(t, "referrer"), 1, "second redeem grants nothing")

	var stored models.ReferralReward
	require.NoError(t, e.db.First(&stored, "id = ?", reward.ID).Error)
	assert.Equal(t, models.RewardStatusApplied, stored.Status)
	require.NotNil(t, stored.AppliedAt)

	var ct models.ClaimToken
	require.NoError(t, e.db.First(&ct, "id = ?", token.ID).Error)
	assert.Equal(t, models.ClaimTokenClaimed, ct.Status)

	_, err = e.claims.Issue(ctx(), "referrer", reward.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestIssueReusesPendingToken(t *testing.T) {
	e := newEngine(t)
	reward := e.earnSMSReward(t, "referrer", "provider")

	first, err := e.claims.Issue(ctx(), "referrer", reward.ID)
	require.NoError(t, err)
	second, err := e.claims.Issue(ctx(), "referrer", reward.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)

	e.clock.Advance(8 * 24 * time.Hour)
	third, err := e.claims.Issue(ctx(), "referrer", reward.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, third.Token, "an expired token is never handed out again")
}

func TestIssuePreconditions(t *testing.T) {
	e := newEngine(t)
	reward := e.earnSMSReward(t, "referrer", "provider")

	_, err := e.claims.Issue(ctx(), "someone-else", reward.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.claims.Issue(ctx(), "referrer", "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	for i := 0; i < 4; i++ {
		e.earnSMSReward(t, "referrer", "provider-"+string(rune('a'+i)))
	}
	normal := e.rewardsOf(t, "referrer", models.RewardTypeFreeNormalMonth)
	require.Len(t, normal, 1)
	_, err = e.claims.Issue(ctx(), "referrer", normal[0].ID)
	assert.ErrorIs(t, err, ErrRewardNotClaimable)

	e.clock.now = reward.ExpiresAt
	_, err = e.claims.Issue(ctx(), "referrer", reward.ID)
	assert.ErrorIs(t, err, ErrRewardExpired)
}

func TestRedeemRejectsBadTokens(t *testing.T) {
	e := newEngine(t)
	reward := e.earnSMSReward(t, "referrer", "provider")

	_, err := e.claims.Redeem(ctx(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = e.claims.Redeem(ctx(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err := e.claims.Issue(ctx(), "referrer", reward.ID)
	require.NoError(t, err)

	e.clock.Advance(7*24*time.Hour + time.Second)
	_, err = e.claims.Redeem(ctx(), token.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Empty(t, e.smsCredits(t, "referrer"))

	var stored models.ReferralReward
	require.NoError(t, e.db.First(&stored, "id = ?", reward.ID).Error)
	assert.Equal(t, models.RewardStatusEarned, stored.Status, "failed redeem leaves the reward untouched")
}

func TestRedeemTwoTokensForOneReward(t *testing.T) {
	e := newEngine(t)
	reward := e.earnSMSReward(t, "referrer", "provider")

	first, err := e.claims.Issue(ctx(), "referrer", reward.ID)
	require.NoError(t, err)
	// Force a second pending token next to the first one.
	second := *first
	second.ID = "00000000-0000-4000-8000-000000000002"
	second.Token = "ab" + first.Token[2:]
	if second.Token == first.Token {
		second.Token = "cd" + first.Token[2:]
	}
	require.NoError(t, e.db.Create(&second).Error)

	_, err = e.claims.Redeem(ctx(), first.Token)
	require.NoError(t, err)
	_, err = e.claims.Redeem(ctx(), second.Token)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Len(t, e.smsCredits(t, "referrer"), 1)

	var ct models.ClaimToken
	require.NoError(t, e.db.First(&ct, "id = ?", second.ID).Error)
	assert.Equal(t, models.ClaimTokenPending, ct.Status, "rolled back with the failed redemption")
}

func TestConcurrentRedeemGrantsOnce(t *testing.T) {
	e := newEngine(t)
	reward := e.earnSMSReward(t, "referrer", "provider")
	token, err := e.claims.Issue(ctx(), "referrer", reward.ID)
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		claimed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.claims.Redeem(ctx(), token.Token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case assert.ErrorIs(t, err, ErrAlreadyClaimed):
				claimed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, callers-1, claimed)
	assert.Len(t, e.smsCredits(t, "referrer"), 1)
}
