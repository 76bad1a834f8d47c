// workers/expiry_sweeper.go
package workers

import (
	"context"
	"time"

	"referral-engine/metrics"
	"referral-engine/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExpirySweeper flips past-due tokens and rewards to expired. Storage hygiene
// only: every read path already checks expires_at itself.
type ExpirySweeper struct {
	db       *gorm.DB
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewExpirySweeper(db *gorm.DB, log *zap.Logger, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweeper{
		db:       db,
		log:      log,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SweepResult reports how many rows a sweep expired.
type SweepResult struct {
	Tokens  int64
	Rewards int64
}

// Sweep runs one pass.
func (w *ExpirySweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	now := w.now()
	db := w.db.WithContext(ctx)

	res := db.Model(&models.ClaimToken{}).
		Where("status = ? AND expires_at <= ?", models.ClaimTokenPending, now).
		Update("status", models.ClaimTokenExpired)
	if res.Error != nil {
		return out, res.Error
	}
	out.Tokens = res.RowsAffected

	res = db.Model(&models.ReferralReward{}).
		Where("status = ? AND expires_at <= ?", models.RewardStatusEarned, now).
		Update("status", models.RewardStatusExpired)
	if res.Error != nil {
		return out, res.Error
	}
	out.Rewards = res.RowsAffected

	metrics.SweptRows.WithLabelValues("claim_tokens").Add(float64(out.Tokens))
	metrics.SweptRows.WithLabelValues("referral_rewards").Add(float64(out.Rewards))
	return out, nil
}

// Start schedules the sweep on gocron until ctx is cancelled.
func (w *ExpirySweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			res, err := w.Sweep(ctx)
			if err != nil {
				w.log.Error("[Sweeper] expiry sweep failed", zap.Error(err))
				return
			}
			if res.Tokens > 0 || res.Rewards > 0 {
				w.log.Info("🧹 expired stale rows",
					zap.Int64("claim_tokens", res.Tokens),
					zap.Int64("referral_rewards", res.Rewards))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	sched.Start()
	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			w.log.Warn("[Sweeper] scheduler shutdown", zap.Error(err))
		}
	}()
	return nil
}
