package services

import "referral-engine/models"

// Individual reward threshold: one sms_30 per referral reaching it.
const (
	IndividualClickThreshold = 50
	IndividualRewardValue    = 30 // SMS messages
)

// AggregateTier is a milestone computed across all of a referrer's
// qualifying referrals.
type AggregateTier struct {
	RewardType  models.RewardType
	Clicks      int64
	Referrals   int
	RewardValue int // free months
}

// AggregateTiers in ascending order.
var AggregateTiers = []AggregateTier{
	{RewardType: models.RewardTypeFreeNormalMonth, Clicks: 250, Referrals: 5, RewardValue: 1},
	{RewardType: models.RewardTypeFreeProMonth, Clicks: 500, Referrals: 10, RewardValue: 1},
}

// Snapshot is the input of a milestone computation: the referrer's
// attributable referrals with each one's lifetime valid-click count, plus
// the count of the referral whose click triggered the evaluation.
type Snapshot struct {
	ReferrerUserID   string
	ClicksByReferral map[string]int64

	TriggerReferralID string
	TriggerClicks     int64
}

// Milestone is a reward the snapshot entitles the referrer to. Whether it
// is new is decided by the conditional insert, not here.
type Milestone struct {
	RewardType     models.RewardType
	ReferralID     *string
	RewardValue    int
	ClicksRequired int64
	ClicksAchieved int64
	IsAggregate    bool
}

// ScopeKey is the uniqueness scope of the milestone's reward row.
func (m Milestone) ScopeKey() string {
	if m.ReferralID == nil {
		return models.AggregateScope
	}
	return *m.ReferralID
}

// Qualification summarises the qualifying set of a snapshot.
type Qualification struct {
	QualifyingReferrals int
	QualifyingClicks    int64
}

// Qualify returns the referrals at or above the individual threshold and the
// sum of their clicks. Clicks of non-qualifying referrals never count.
func (s Snapshot) Qualify() Qualification {
	var q Qualification
	for _, n := range s.ClicksByReferral {
		if n >= IndividualClickThreshold {
			q.QualifyingReferrals++
			q.QualifyingClicks += n
		}
	}
	return q
}

// ComputeMilestones lists every reward the snapshot has crossed, for the
// referral that triggered the evaluation plus all aggregate tiers. It is
// pure so the thresholds can be exercised without a database.
func ComputeMilestones(s Snapshot) []Milestone {
	var out []Milestone

	if n := s.TriggerClicks; s.TriggerReferralID != "" && n >= IndividualClickThreshold {
		id := s.TriggerReferralID
		out = append(out, Milestone{
			RewardType:     models.RewardTypeSMS30,
			ReferralID:     &id,
			RewardValue:    IndividualRewardValue,
			ClicksRequired: IndividualClickThreshold,
			ClicksAchieved: n,
		})
	}

	q := s.Qualify()
	for _, tier := range AggregateTiers {
		if q.QualifyingClicks >= tier.Clicks && q.QualifyingReferrals >= tier.Referrals {
			out = append(out, Milestone{
				RewardType:     tier.RewardType,
				RewardValue:    tier.RewardValue,
				ClicksRequired: tier.Clicks,
				ClicksAchieved: q.QualifyingClicks,
				IsAggregate:    true,
			})
		}
	}
	return out
}
