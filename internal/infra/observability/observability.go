// Package observability exposes Prometheus metrics for the chore economy
// core: XP flow, review decisions, credibility movement, sweeps, and
// badge awards. Served on /metrics by the API server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// XPEarned tracks total XP credited through task approvals.
var XPEarned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "ledger",
	Name:      "xp_earned_total",
	Help:      "Total XP credited through task approvals.",
})

// XPRedeemed tracks total XP redeemed for screen time.
var XPRedeemed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "ledger",
	Name:      "xp_redeemed_total",
	Help:      "Total XP redeemed for screen time.",
})

// XPGranted tracks total out-of-band XP grants.
var XPGranted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "ledger",
	Name:      "xp_granted_total",
	Help:      "Total XP granted out of band (manual top-ups, badge bonuses).",
})

// RedeemRejected tracks redemptions refused before any mutation.
var RedeemRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "ledger",
	Name:      "redeem_rejected_total",
	Help:      "Total redemption attempts rejected before any mutation.",
})

// ─── Review Metrics ─────────────────────────────────────────────────────────

// ReviewDecisions tracks guardian decisions by outcome.
var ReviewDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "review",
	Name:      "decisions_total",
	Help:      "Total review decisions by outcome (approved, declined).",
}, []string{"outcome"})

// Appeals tracks appeals filed within the window.
var Appeals = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "review",
	Name:      "appeals_total",
	Help:      "Total appeals filed within the 24h window.",
})

// TasksExpired tracks assignments expired by the due-date sweep.
var TasksExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "review",
	Name:      "tasks_expired_total",
	Help:      "Total assignments expired by the due-date sweep.",
})

// ─── Credibility Metrics ────────────────────────────────────────────────────

// CredibilityDeltas tracks applied score deltas by event kind.
var CredibilityDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "credibility",
	Name:      "score_deltas_total",
	Help:      "Total credibility events applied, by kind.",
}, []string{"kind"})

// DecayRestores tracks score points returned by the decay sweep.
var DecayRestores = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "credibility",
	Name:      "decay_restored_points_total",
	Help:      "Total score points returned by the 30/60-day decay sweep.",
})

// RedemptionBonuses tracks dramatic-recovery bonus activations.
var RedemptionBonuses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "credibility",
	Name:      "redemption_bonuses_total",
	Help:      "Total redemption bonus activations.",
})

// ─── Badge Metrics ──────────────────────────────────────────────────────────

// BadgesEarned tracks badge awards by type.
var BadgesEarned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chorequest",
	Subsystem: "badges",
	Name:      "earned_total",
	Help:      "Total badges earned, by badge type.",
}, []string{"type"})
