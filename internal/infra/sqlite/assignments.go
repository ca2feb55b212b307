// Task assignment and review authority row operations.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/chorequest/chorequest/internal/domain"
)

// ─── Assignment Operations ──────────────────────────────────────────────────

// InsertAssignment persists a newly claimed or assigned task.
func (o *Ops) InsertAssignment(a *domain.TaskAssignment) error {
	var adjusted any
	if a.AdjustedLevel != nil {
		adjusted = *a.AdjustedLevel
	}
	_, err := o.q.Exec(`
		INSERT INTO assignments (
			id, template_id, child_id, assigned_by, title, description, category,
			assigned_level, adjusted_level, status, created_at, started_at,
			completed_at, reviewed_at, due_date, photo_url, child_notes,
			completion_minutes, reviewed_by, parent_notes, review_decision,
			xp_awarded, appeal_deadline
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TemplateID, a.ChildID, nullableString(a.AssignedBy),
		a.Title, a.Description, a.Category, a.AssignedLevel, adjusted,
		string(a.Status), formatTime(a.CreatedAt), formatTimePtr(a.StartedAt),
		formatTimePtr(a.CompletedAt), formatTimePtr(a.ReviewedAt),
		formatTimePtr(a.DueDate), a.PhotoURL, a.ChildNotes,
		a.CompletionTimeMinutes, a.ReviewedBy, a.ParentNotes,
		string(a.ReviewDecision), a.XPAwarded, formatTimePtr(a.AppealDeadline))
	return err
}

// UpdateAssignment writes back a mutated assignment.
func (o *Ops) UpdateAssignment(a *domain.TaskAssignment) error {
	var adjusted any
	if a.AdjustedLevel != nil {
		adjusted = *a.AdjustedLevel
	}
	_, err := o.q.Exec(`
		UPDATE assignments SET
			title = ?, description = ?, category = ?,
			assigned_level = ?, adjusted_level = ?, status = ?,
			started_at = ?, completed_at = ?, reviewed_at = ?, due_date = ?,
			photo_url = ?, child_notes = ?, completion_minutes = ?,
			reviewed_by = ?, parent_notes = ?, review_decision = ?,
			xp_awarded = ?, appeal_deadline = ?
		WHERE id = ?
	`, a.Title, a.Description, a.Category,
		a.AssignedLevel, adjusted, string(a.Status),
		formatTimePtr(a.StartedAt), formatTimePtr(a.CompletedAt),
		formatTimePtr(a.ReviewedAt), formatTimePtr(a.DueDate),
		a.PhotoURL, a.ChildNotes, a.CompletionTimeMinutes,
		a.ReviewedBy, a.ParentNotes, string(a.ReviewDecision),
		a.XPAwarded, formatTimePtr(a.AppealDeadline), a.ID)
	return err
}

// GetAssignment reads one assignment. Returns sql.ErrNoRows if absent.
func (o *Ops) GetAssignment(id string) (*domain.TaskAssignment, error) {
	row := o.q.QueryRow(assignmentSelect+` WHERE id = ?`, id)
	return scanAssignment(row)
}

// ListAssignmentsByChild returns a child's assignments, newest first.
func (o *Ops) ListAssignmentsByChild(childID string, limit int) ([]domain.TaskAssignment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.q.Query(assignmentSelect+`
		WHERE child_id = ? ORDER BY created_at DESC LIMIT ?
	`, childID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ListPendingForReviewer returns submitted or appealed assignments for
// every child the guardian has review authority over, oldest first.
func (o *Ops) ListPendingForReviewer(guardianID string) ([]domain.TaskAssignment, error) {
	rows, err := o.q.Query(assignmentSelect+`
		WHERE status IN (?, ?)
		  AND child_id IN (SELECT child_id FROM review_authority WHERE guardian_id = ?)
		ORDER BY completed_at ASC
	`, string(domain.StatusPendingReview), string(domain.StatusAppealed), guardianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ListExpirable returns assignments still in Assigned or InProgress whose
// due date has passed.
func (o *Ops) ListExpirable(now time.Time) ([]domain.TaskAssignment, error) {
	rows, err := o.q.Query(assignmentSelect+`
		WHERE status IN (?, ?) AND due_date IS NOT NULL AND due_date < ?
	`, string(domain.StatusAssigned), string(domain.StatusInProgress), formatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// CountApprovedTasks returns how many of a child's assignments ended
// Approved (feeds badge thresholds).
func (o *Ops) CountApprovedTasks(childID string) (int, error) {
	var n int
	err := o.q.QueryRow(`
		SELECT COUNT(*) FROM assignments WHERE child_id = ? AND status = ?
	`, childID, string(domain.StatusApproved)).Scan(&n)
	return n, err
}

// ─── Review Authority Operations ────────────────────────────────────────────

// GrantReviewAuthority lets a guardian review a child's submissions.
func (o *Ops) GrantReviewAuthority(guardianID, childID string) error {
	_, err := o.q.Exec(`
		INSERT OR IGNORE INTO review_authority (guardian_id, child_id) VALUES (?, ?)
	`, guardianID, childID)
	return err
}

// HasReviewAuthority checks whether a guardian may review a child.
func (o *Ops) HasReviewAuthority(guardianID, childID string) (bool, error) {
	var n int
	err := o.q.QueryRow(`
		SELECT COUNT(*) FROM review_authority WHERE guardian_id = ? AND child_id = ?
	`, guardianID, childID).Scan(&n)
	return n > 0, err
}

// ─── Scan Helpers ───────────────────────────────────────────────────────────

const assignmentSelect = `
	SELECT id, template_id, child_id, assigned_by, title, description, category,
		assigned_level, adjusted_level, status, created_at, started_at,
		completed_at, reviewed_at, due_date, photo_url, child_notes,
		completion_minutes, reviewed_by, parent_notes, review_decision,
		xp_awarded, appeal_deadline
	FROM assignments`

func scanAssignment(r rowScanner) (*domain.TaskAssignment, error) {
	var a domain.TaskAssignment
	var assignedBy sql.NullString
	var adjusted sql.NullInt64
	var status, created string
	var started, completed, reviewed, due, deadline sql.NullString
	var decision string

	err := r.Scan(&a.ID, &a.TemplateID, &a.ChildID, &assignedBy,
		&a.Title, &a.Description, &a.Category,
		&a.AssignedLevel, &adjusted, &status, &created, &started,
		&completed, &reviewed, &due, &a.PhotoURL, &a.ChildNotes,
		&a.CompletionTimeMinutes, &a.ReviewedBy, &a.ParentNotes, &decision,
		&a.XPAwarded, &deadline)
	if err != nil {
		return nil, err
	}

	a.AssignedBy = assignedBy.String
	if adjusted.Valid {
		lvl := int(adjusted.Int64)
		a.AdjustedLevel = &lvl
	}
	a.Status = domain.AssignmentStatus(status)
	a.ReviewDecision = domain.ReviewDecision(decision)
	a.CreatedAt = parseTime(created)
	a.StartedAt = parseTimePtr(started)
	a.CompletedAt = parseTimePtr(completed)
	a.ReviewedAt = parseTimePtr(reviewed)
	a.DueDate = parseTimePtr(due)
	a.AppealDeadline = parseTimePtr(deadline)
	return &a, nil
}

func scanAssignments(rows *sql.Rows) ([]domain.TaskAssignment, error) {
	var out []domain.TaskAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
