package domain

import "time"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// TemplateCatalog abstracts the read-only task template catalog.
type TemplateCatalog interface {
	// GetTemplate resolves a template id. Returns ErrNotFound if unknown.
	GetTemplate(id string) (*TaskTemplate, error)

	// ListTemplates returns every template, sorted by id.
	ListTemplates() []TaskTemplate
}

// EvidenceStore abstracts photo storage. The core only ever sees the
// resulting opaque URL.
type EvidenceStore interface {
	StoreEvidence(photo []byte) (url string, err error)
}

// ─── Event Callbacks ────────────────────────────────────────────────────────
// Push notification of change is an explicit callback, never implicit
// observation of mutable state.

// EventType classifies a notification event.
type EventType string

const (
	EventTaskApproved           EventType = "task_approved"
	EventTaskDeclined           EventType = "task_declined"
	EventBadgeEarned            EventType = "badge_earned"
	EventRedemptionBonusActive  EventType = "redemption_bonus_activated"
	EventRedemptionBonusExpired EventType = "redemption_bonus_expired"
)

// Event is a single notification emitted after a committed change.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	TaskID    string    `json:"task_id,omitempty"`
	BadgeType string    `json:"badge_type,omitempty"`
	XPAwarded int       `json:"xp_awarded,omitempty"`
	Score     int       `json:"score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives committed-change notifications. Implementations must
// not block; delivery is best-effort and never affects the mutation.
type EventSink interface {
	Publish(event Event)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(Event) {}
