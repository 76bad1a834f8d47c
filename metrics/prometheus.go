package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "referral"

var (
	// ClicksRecorded counts persisted clicks by outcome (valid, monthly_cap, cooldown, self_click)
	ClicksRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "clicks",
		Name:      "recorded_total",
		Help:      "Attributable profile visits persisted, by validation outcome.",
	}, []string{"outcome"})

	// RewardsIssued counts rewards created by the engine, by reward type
	RewardsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rewards",
		Name:      "issued_total",
		Help:      "Rewards issued on a threshold crossing.",
	}, []string{"reward_type"})

	// EvaluationFailures counts reward evaluations that failed after a valid click
	EvaluationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rewards",
		Name:      "evaluation_failures_total",
		Help:      "Reward evaluations that failed and were swallowed.",
	})

	// Redemptions counts redeem attempts by result code
	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "claims",
		Name:      "redemptions_total",
		Help:      "Claim token redemptions by result.",
	}, []string{"result"})

	// SweptRows counts rows moved to expired by the hygiene sweep
	SweptRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "expired_rows_total",
		Help:      "Rows marked expired by the background sweep.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(ClicksRecorded, RewardsIssued, EvaluationFailures, Redemptions, SweptRows)
}

// Handler exposes the default registry on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
