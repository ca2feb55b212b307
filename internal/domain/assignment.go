package domain

import "time"

// ─── Task Assignment Types ──────────────────────────────────────────────────

// AssignmentStatus is a state in the verification workflow.
//
//	Assigned → InProgress → PendingReview → {Approved | Declined}
//	Declined → Appealed → {Approved | Declined}
//	Assigned/InProgress → Expired (due date passed)
//
// Approved, Expired, and Declined-past-appeal are terminal.
type AssignmentStatus string

const (
	StatusAssigned      AssignmentStatus = "assigned"
	StatusInProgress    AssignmentStatus = "in_progress"
	StatusPendingReview AssignmentStatus = "pending_review"
	StatusApproved      AssignmentStatus = "approved"
	StatusDeclined      AssignmentStatus = "declined"
	StatusAppealed      AssignmentStatus = "appealed"
	StatusExpired       AssignmentStatus = "expired"
)

// ReviewDecision records the guardian's call on a submitted task.
type ReviewDecision string

const (
	DecisionApproved ReviewDecision = "approved"
	DecisionDeclined ReviewDecision = "declined"
)

// AppealWindow is how long after a decline the child may contest it.
const AppealWindow = 24 * time.Hour

// TaskAssignment is one claimed or assigned instance of a task template.
// Owned by the claiming child until review; review fields are written
// exclusively by the reviewing guardian.
type TaskAssignment struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	ChildID    string `json:"child_id"`
	AssignedBy string `json:"assigned_by,omitempty"` // Empty means self-claimed

	// Copied from the template at claim time, parent-editable afterwards.
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`

	AssignedLevel int  `json:"assigned_level"`
	AdjustedLevel *int `json:"adjusted_level,omitempty"` // Reviewer override

	Status      AssignmentStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`

	// Evidence submitted by the child.
	PhotoURL              string `json:"photo_url,omitempty"`
	ChildNotes            string `json:"child_notes,omitempty"`
	CompletionTimeMinutes int    `json:"completion_time_minutes,omitempty"`

	// Review metadata written by the guardian.
	ReviewedBy     string         `json:"reviewed_by,omitempty"`
	ParentNotes    string         `json:"parent_notes,omitempty"`
	ReviewDecision ReviewDecision `json:"review_decision,omitempty"`
	XPAwarded      int            `json:"xp_awarded"`
	AppealDeadline *time.Time     `json:"appeal_deadline,omitempty"`
}

// EffectiveLevel returns the reviewer-adjusted level if set, otherwise the
// level the task was assigned at.
func (a *TaskAssignment) EffectiveLevel() int {
	if a.AdjustedLevel != nil {
		return *a.AdjustedLevel
	}
	return a.AssignedLevel
}

// Reviewable reports whether a guardian decision is currently valid.
func (a *TaskAssignment) Reviewable() bool {
	return a.Status == StatusPendingReview || a.Status == StatusAppealed
}

// Terminal reports whether the assignment can never transition again.
func (a *TaskAssignment) Terminal(now time.Time) bool {
	switch a.Status {
	case StatusApproved, StatusExpired:
		return true
	case StatusDeclined:
		// Declined stays appealable until the window closes.
		return a.AppealDeadline == nil || !now.Before(*a.AppealDeadline)
	default:
		return false
	}
}

// ─── Task Template (external catalog interface) ─────────────────────────────

// TaskTemplate is an immutable catalog entry. The full 700+ entry catalog
// lives outside this core; templates are consumed read-only.
type TaskTemplate struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Category         string      `json:"category"`
	BaseXPByLevel    map[int]int `json:"base_xp_by_level"`
	EstimatedMinutes int         `json:"estimated_minutes"`
}

// BaseXP returns the template's base XP for a level, falling back to the
// smallest defined payout when the requested level is missing.
func (t *TaskTemplate) BaseXP(level int) int {
	if xp, ok := t.BaseXPByLevel[level]; ok {
		return xp
	}
	best := 0
	for _, xp := range t.BaseXPByLevel {
		if best == 0 || xp < best {
			best = xp
		}
	}
	return best
}
