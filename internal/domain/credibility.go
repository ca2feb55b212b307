package domain

import "time"

// ─── Credibility Types ──────────────────────────────────────────────────────

const (
	// ScoreFloor and ScoreCeiling bound the credibility score.
	ScoreFloor   = 0
	ScoreCeiling = 100

	// DefaultScore is where every new user starts — fully trusted.
	DefaultScore = 100
)

// EventKind classifies a credibility history entry.
type EventKind string

const (
	EventApprovedTask EventKind = "approved_task"
	EventStreakBonus  EventKind = "streak_bonus"
	EventDownvote     EventKind = "downvote"
	EventDecayRestore EventKind = "decay_restore"
	EventUndo         EventKind = "undo"
)

// CredibilityEvent is a single row in a user's append-only score history.
// Downvote entries carry the applied penalty magnitude and are the only
// entries eligible for decay.
type CredibilityEvent struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	Kind          EventKind `json:"kind"`
	Amount        int       `json:"amount"` // Signed score delta as applied
	Timestamp     time.Time `json:"timestamp"`
	RelatedTaskID string    `json:"related_task_id,omitempty"`
	Decayed       bool      `json:"decayed"` // Downvotes only: 30-day half restore done
}

// CredibilityState is a user's trust record. One per user, created lazily.
type CredibilityState struct {
	UserID                   string     `json:"user_id"`
	Score                    int        `json:"score"` // Clamped [0, 100]
	ConsecutiveApprovedTasks int        `json:"consecutive_approved_tasks"`
	HasRedemptionBonus       bool       `json:"has_redemption_bonus"`
	RedemptionBonusExpiry    *time.Time `json:"redemption_bonus_expiry,omitempty"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// RedemptionBonusActive reports whether the bonus is held and unexpired at
// the given instant. Expiry is a pure comparison — no persisted
// deactivation is required.
func (c *CredibilityState) RedemptionBonusActive(now time.Time) bool {
	return c.HasRedemptionBonus &&
		c.RedemptionBonusExpiry != nil &&
		now.Before(*c.RedemptionBonusExpiry)
}

// ─── Credibility Tiers ──────────────────────────────────────────────────────

// Tier is a derived (never persisted) score band with its earning
// multiplier and display metadata.
type Tier struct {
	Name        string  `json:"name"`
	MinScore    int     `json:"min_score"`
	MaxScore    int     `json:"max_score"`
	Multiplier  float64 `json:"multiplier"`
	Color       string  `json:"color"`
	Description string  `json:"description"`
}

// Tiers is the fixed five-tier table, highest first.
var Tiers = []Tier{
	{"Excellent", 90, 100, 1.2, "#22c55e", "Fully trusted — earns a 20% XP bonus"},
	{"Good", 75, 89, 1.0, "#84cc16", "Trusted — earns full XP"},
	{"Fair", 60, 74, 0.8, "#eab308", "Some doubts — earns 80% XP"},
	{"Poor", 40, 59, 0.5, "#f97316", "Low trust — earns half XP"},
	{"Very Poor", 0, 39, 0.3, "#ef4444", "Minimal trust — earns 30% XP"},
}

// TierFor returns the tier containing the given score. Scores outside
// [0, 100] are clamped into range first.
func TierFor(score int) Tier {
	score = ClampScore(score)
	for _, t := range Tiers {
		if score >= t.MinScore && score <= t.MaxScore {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// ClampScore restricts a score to [ScoreFloor, ScoreCeiling].
func ClampScore(score int) int {
	if score < ScoreFloor {
		return ScoreFloor
	}
	if score > ScoreCeiling {
		return ScoreCeiling
	}
	return score
}

// CredibilityStatus is the immutable snapshot returned to the UI layer.
type CredibilityStatus struct {
	UserID          string             `json:"user_id"`
	Score           int                `json:"score"`
	Tier            Tier               `json:"tier"`
	ConversionRate  float64            `json:"conversion_rate"`
	Streak          int                `json:"streak"`
	RedemptionBonus bool               `json:"redemption_bonus"`
	BonusExpiry     *time.Time         `json:"bonus_expiry,omitempty"`
	History         []CredibilityEvent `json:"history"`
}
