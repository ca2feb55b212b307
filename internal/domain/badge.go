package domain

import "time"

// ─── Badge Types ────────────────────────────────────────────────────────────

// BadgeCriterion is the counter a badge threshold applies to.
type BadgeCriterion string

const (
	CriterionTasksApproved BadgeCriterion = "tasks_approved"
	CriterionLifetimeXP    BadgeCriterion = "lifetime_xp"
	CriterionStreak        BadgeCriterion = "streak"
)

// BadgeDefinition is one entry in the fixed achievement catalog.
type BadgeDefinition struct {
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Icon      string         `json:"icon"`
	Criterion BadgeCriterion `json:"criterion"`
	Target    int            `json:"target"`
	BonusXP   int            `json:"bonus_xp"` // Granted once, via the ledger
}

// EarnedBadge is a write-once award record. Existence implies the badge is
// permanently held.
type EarnedBadge struct {
	ChildID   string    `json:"child_id"`
	BadgeType string    `json:"badge_type"`
	EarnedAt  time.Time `json:"earned_at"`
}

// BadgeProgress is derived on demand, never persisted.
type BadgeProgress struct {
	Definition BadgeDefinition `json:"definition"`
	Current    int             `json:"current"`
	Target     int             `json:"target"`
	IsEarned   bool            `json:"is_earned"`
}
