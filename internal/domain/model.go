// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── XP Ledger Types ────────────────────────────────────────────────────────

// SoftCapXP is the balance threshold above which earning yields only 50%.
const SoftCapXP = 1000

// XPBalance is a user's current XP holdings. One row per user, created
// lazily on first reference.
//
// Invariant: CurrentXP == LifetimeEarned − LifetimeSpent, except that
// out-of-band grants raise CurrentXP and LifetimeEarned together without
// a task reference.
type XPBalance struct {
	UserID         string    `json:"user_id"`
	CurrentXP      int       `json:"current_xp"`
	LifetimeEarned int       `json:"lifetime_earned"`
	LifetimeSpent  int       `json:"lifetime_spent"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// TransactionType is the business reason for a ledger mutation.
type TransactionType string

const (
	TxEarned   TransactionType = "earned"
	TxRedeemed TransactionType = "redeemed"
	TxGranted  TransactionType = "granted"
)

// XPTransaction is a single row in the append-only XP log. Immutable once
// written. Amount is always positive; the direction is implied by Type.
type XPTransaction struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Type              TransactionType `json:"type"`
	Amount            int             `json:"amount"`
	Timestamp         time.Time       `json:"timestamp"`
	RelatedTaskID     string          `json:"related_task_id,omitempty"`
	CredibilityAtTime *int            `json:"credibility_at_time,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

// MinutesValue converts an XP amount to redeemable screen-time minutes.
// The ledger itself is always 1 XP : 1 minute; tier and redemption-bonus
// scaling is applied by the caller via the conversion rate.
func MinutesValue(xp int, conversionRate float64) int {
	if xp <= 0 {
		return 0
	}
	return int(float64(xp) * conversionRate)
}
