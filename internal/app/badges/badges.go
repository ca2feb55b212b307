// Package badges implements the achievement tracker: a read-only
// observer of ledger and workflow counters that awards one-time badges
// when thresholds are crossed, granting a fixed XP bonus back into the
// ledger. Re-running with no new qualifying progress never awards twice.
package badges

import (
	"fmt"
	"time"

	"github.com/chorequest/chorequest/internal/app/ledger"
	"github.com/chorequest/chorequest/internal/app/trust"
	"github.com/chorequest/chorequest/internal/app/userlock"
	"github.com/chorequest/chorequest/internal/domain"
	"github.com/chorequest/chorequest/internal/infra/observability"
	"github.com/chorequest/chorequest/internal/infra/sqlite"
)

// Definitions is the fixed badge catalog: task-count, lifetime-XP, and
// streak thresholds.
var Definitions = []domain.BadgeDefinition{
	{Type: "first_task", Name: "First Steps", Icon: "🌱", Criterion: domain.CriterionTasksApproved, Target: 1, BonusXP: 10},
	{Type: "ten_tasks", Name: "Getting It Done", Icon: "🔨", Criterion: domain.CriterionTasksApproved, Target: 10, BonusXP: 25},
	{Type: "fifty_tasks", Name: "Household Hero", Icon: "🦸", Criterion: domain.CriterionTasksApproved, Target: 50, BonusXP: 75},
	{Type: "hundred_tasks", Name: "Chore Champion", Icon: "🏆", Criterion: domain.CriterionTasksApproved, Target: 100, BonusXP: 150},
	{Type: "xp_500", Name: "Piggy Bank", Icon: "🐷", Criterion: domain.CriterionLifetimeXP, Target: 500, BonusXP: 25},
	{Type: "xp_2500", Name: "High Earner", Icon: "💰", Criterion: domain.CriterionLifetimeXP, Target: 2500, BonusXP: 100},
	{Type: "streak_5", Name: "On a Roll", Icon: "🎯", Criterion: domain.CriterionStreak, Target: 5, BonusXP: 15},
	{Type: "streak_10", Name: "Unstoppable", Icon: "🔥", Criterion: domain.CriterionStreak, Target: 10, BonusXP: 50},
	{Type: "streak_25", Name: "Perfectionist", Icon: "💎", Criterion: domain.CriterionStreak, Target: 25, BonusXP: 125},
}

// Tracker evaluates badge criteria and records awards.
type Tracker struct {
	db     *sqlite.DB
	locks  *userlock.Registry
	ledger *ledger.Service
	trust  *trust.Engine
	sink   domain.EventSink

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a badge tracker.
func New(db *sqlite.DB, locks *userlock.Registry, led *ledger.Service, tr *trust.Engine, sink domain.EventSink) *Tracker {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &Tracker{db: db, locks: locks, ledger: led, trust: tr, sink: sink, now: time.Now}
}

// SetClock overrides the time source (tests only).
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// EvaluateBadges checks every definition against the child's counters and
// awards each not-yet-held badge whose criterion is met. Returns the
// newly earned badges for notification. Idempotent: existence of the
// EarnedBadge row gates the award.
func (t *Tracker) EvaluateBadges(childID string) ([]domain.EarnedBadge, error) {
	counters, err := t.counters(childID)
	if err != nil {
		return nil, err
	}

	var earned []domain.EarnedBadge
	for _, def := range Definitions {
		if counters[def.Criterion] < def.Target {
			continue
		}
		held, err := t.db.Ops().HasBadge(childID, def.Type)
		if err != nil {
			return earned, domain.Persistencef("check badge", err)
		}
		if held {
			continue
		}

		awarded, err := t.award(childID, def)
		if err != nil {
			return earned, err
		}
		if !awarded {
			continue // Raced with a concurrent award
		}

		badge := domain.EarnedBadge{ChildID: childID, BadgeType: def.Type, EarnedAt: t.now()}
		earned = append(earned, badge)
		observability.BadgesEarned.WithLabelValues(def.Type).Inc()
		t.sink.Publish(domain.Event{
			Type:      domain.EventBadgeEarned,
			UserID:    childID,
			BadgeType: def.Type,
			XPAwarded: def.BonusXP,
			Timestamp: t.now(),
		})
	}
	return earned, nil
}

// award writes the badge row and its bonus grant as one atomic unit
// under the child's lock, so a failed grant rolls the badge back and a
// later evaluation retries the whole award.
func (t *Tracker) award(childID string, def domain.BadgeDefinition) (bool, error) {
	defer t.locks.Lock(childID)()

	var awarded bool
	err := t.db.WithTx(func(ops *sqlite.Ops) error {
		var err error
		awarded, err = ops.InsertEarnedBadge(childID, def.Type, t.now())
		if err != nil {
			return domain.Persistencef("record badge", err)
		}
		if !awarded {
			return nil
		}
		reason := fmt.Sprintf("badge bonus: %s", def.Name)
		return t.ledger.GrantTx(ops, childID, def.BonusXP, reason)
	})
	if err != nil {
		return false, err
	}
	return awarded, nil
}

// Progress returns, for every definition, how close the child is —
// computed on demand, never persisted.
func (t *Tracker) Progress(childID string) ([]domain.BadgeProgress, error) {
	counters, err := t.counters(childID)
	if err != nil {
		return nil, err
	}
	held, err := t.db.Ops().ListEarnedBadges(childID)
	if err != nil {
		return nil, domain.Persistencef("list badges", err)
	}
	heldSet := make(map[string]bool, len(held))
	for _, b := range held {
		heldSet[b.BadgeType] = true
	}

	out := make([]domain.BadgeProgress, 0, len(Definitions))
	for _, def := range Definitions {
		current := counters[def.Criterion]
		if current > def.Target {
			current = def.Target
		}
		out = append(out, domain.BadgeProgress{
			Definition: def,
			Current:    current,
			Target:     def.Target,
			IsEarned:   heldSet[def.Type],
		})
	}
	return out, nil
}

// Earned returns the child's held badges in award order.
func (t *Tracker) Earned(childID string) ([]domain.EarnedBadge, error) {
	out, err := t.db.Ops().ListEarnedBadges(childID)
	if err != nil {
		return nil, domain.Persistencef("list badges", err)
	}
	return out, nil
}

func (t *Tracker) counters(childID string) (map[domain.BadgeCriterion]int, error) {
	approved, err := t.db.Ops().CountApprovedTasks(childID)
	if err != nil {
		return nil, domain.Persistencef("count approved tasks", err)
	}
	bal, err := t.ledger.Balance(childID)
	if err != nil {
		return nil, err
	}
	streak, err := t.trust.Streak(childID)
	if err != nil {
		return nil, err
	}
	return map[domain.BadgeCriterion]int{
		domain.CriterionTasksApproved: approved,
		domain.CriterionLifetimeXP:    bal.LifetimeEarned,
		domain.CriterionStreak:        streak,
	}, nil
}
