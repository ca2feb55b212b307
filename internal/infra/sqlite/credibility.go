// Credibility state, event history, and archive row operations.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/chorequest/chorequest/internal/domain"
)

// ─── State Operations ───────────────────────────────────────────────────────

// EnsureCredibility returns the user's credibility state, creating the
// default (score 100) row on first reference.
func (o *Ops) EnsureCredibility(userID string, now time.Time) (*domain.CredibilityState, error) {
	s, err := o.GetCredibility(userID)
	if err == nil {
		return s, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	_, err = o.q.Exec(`
		INSERT INTO credibility_states (user_id, score, streak, has_redemption_bonus, updated_at)
		VALUES (?, ?, 0, 0, ?)
	`, userID, domain.DefaultScore, formatTime(now))
	if err != nil {
		return nil, err
	}
	return &domain.CredibilityState{
		UserID:    userID,
		Score:     domain.DefaultScore,
		UpdatedAt: now,
	}, nil
}

// GetCredibility reads a user's credibility state. Returns sql.ErrNoRows
// if absent.
func (o *Ops) GetCredibility(userID string) (*domain.CredibilityState, error) {
	var s domain.CredibilityState
	var bonus int
	var expiry sql.NullString
	var updated string
	err := o.q.QueryRow(`
		SELECT user_id, score, streak, has_redemption_bonus, redemption_bonus_expiry, updated_at
		FROM credibility_states WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.Score, &s.ConsecutiveApprovedTasks, &bonus, &expiry, &updated)
	if err != nil {
		return nil, err
	}
	s.HasRedemptionBonus = bonus == 1
	s.RedemptionBonusExpiry = parseTimePtr(expiry)
	s.UpdatedAt = parseTime(updated)
	return &s, nil
}

// UpdateCredibility writes back a mutated state row.
func (o *Ops) UpdateCredibility(s *domain.CredibilityState) error {
	bonus := 0
	if s.HasRedemptionBonus {
		bonus = 1
	}
	_, err := o.q.Exec(`
		UPDATE credibility_states
		SET score = ?, streak = ?, has_redemption_bonus = ?, redemption_bonus_expiry = ?, updated_at = ?
		WHERE user_id = ?
	`, s.Score, s.ConsecutiveApprovedTasks, bonus,
		formatTimePtr(s.RedemptionBonusExpiry), formatTime(s.UpdatedAt), s.UserID)
	return err
}

// ─── Event History Operations ───────────────────────────────────────────────

// InsertEvent appends a history entry and returns its row id. priorStreak
// is recorded for downvotes so an undo can restore the streak counter.
func (o *Ops) InsertEvent(ev *domain.CredibilityEvent, priorStreak int) (int64, error) {
	decayed := 0
	if ev.Decayed {
		decayed = 1
	}
	res, err := o.q.Exec(`
		INSERT INTO credibility_events (user_id, kind, amount, timestamp, related_task_id, decayed, prior_streak)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.UserID, string(ev.Kind), ev.Amount, formatTime(ev.Timestamp),
		nullableString(ev.RelatedTaskID), decayed, priorStreak)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListEvents returns a user's history entries, newest first.
func (o *Ops) ListEvents(userID string, limit int) ([]domain.CredibilityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.q.Query(`
		SELECT id, user_id, kind, amount, timestamp, related_task_id, decayed
		FROM credibility_events WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsForTask returns a user's history entries referencing a task,
// oldest first. Used by undo to find exactly what a decision applied.
func (o *Ops) EventsForTask(userID, taskID string) ([]domain.CredibilityEvent, error) {
	rows, err := o.q.Query(`
		SELECT id, user_id, kind, amount, timestamp, related_task_id, decayed
		FROM credibility_events WHERE user_id = ? AND related_task_id = ?
		ORDER BY id ASC
	`, userID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEvent reads one history entry by row id. Returns sql.ErrNoRows if
// it no longer exists (undone, or fully decayed).
func (o *Ops) GetEvent(eventID int64) (*domain.CredibilityEvent, error) {
	row := o.q.QueryRow(`
		SELECT id, user_id, kind, amount, timestamp, related_task_id, decayed
		FROM credibility_events WHERE id = ?
	`, eventID)
	return scanEvent(row)
}

// LatestUndecayedDownvote returns the most recent active downvote for the
// stacking-penalty lookback, or nil when the user has none.
func (o *Ops) LatestUndecayedDownvote(userID string) (*domain.CredibilityEvent, error) {
	row := o.q.QueryRow(`
		SELECT id, user_id, kind, amount, timestamp, related_task_id, decayed
		FROM credibility_events
		WHERE user_id = ? AND kind = ? AND decayed = 0
		ORDER BY timestamp DESC, id DESC LIMIT 1
	`, userID, string(domain.EventDownvote))

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// DownvotePriorStreak reads the streak recorded when a downvote was
// applied.
func (o *Ops) DownvotePriorStreak(eventID int64) (int, error) {
	var streak int
	err := o.q.QueryRow(`
		SELECT prior_streak FROM credibility_events WHERE id = ?
	`, eventID).Scan(&streak)
	return streak, err
}

// ListDecayableDownvotes returns, across all users, downvotes whose
// timestamp is at or before the cutoff. When includeHalfDecayed is false,
// entries already through the 30-day stage are excluded.
func (o *Ops) ListDecayableDownvotes(cutoff time.Time, includeHalfDecayed bool) ([]domain.CredibilityEvent, error) {
	query := `
		SELECT id, user_id, kind, amount, timestamp, related_task_id, decayed
		FROM credibility_events
		WHERE kind = ? AND timestamp <= ?`
	if !includeHalfDecayed {
		query += ` AND decayed = 0`
	}
	query += ` ORDER BY user_id, id ASC`

	rows, err := o.q.Query(query, string(domain.EventDownvote), formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkEventDecayed flags a downvote as through its 30-day partial stage.
func (o *Ops) MarkEventDecayed(eventID int64) error {
	_, err := o.q.Exec(`UPDATE credibility_events SET decayed = 1 WHERE id = ?`, eventID)
	return err
}

// DeleteEvent removes a history entry (undo, or 60-day full decay after
// archiving).
func (o *Ops) DeleteEvent(eventID int64) error {
	_, err := o.q.Exec(`DELETE FROM credibility_events WHERE id = ?`, eventID)
	return err
}

// ArchiveEvent copies a fully decayed entry to the archival log.
func (o *Ops) ArchiveEvent(ev *domain.CredibilityEvent, now time.Time) error {
	_, err := o.q.Exec(`
		INSERT INTO credibility_archive (user_id, kind, amount, timestamp, related_task_id, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.UserID, string(ev.Kind), ev.Amount, formatTime(ev.Timestamp),
		nullableString(ev.RelatedTaskID), formatTime(now))
	return err
}

// ─── Scan Helpers ───────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*domain.CredibilityEvent, error) {
	var ev domain.CredibilityEvent
	var kind, ts string
	var taskID sql.NullString
	var decayed int
	if err := r.Scan(&ev.ID, &ev.UserID, &kind, &ev.Amount, &ts, &taskID, &decayed); err != nil {
		return nil, err
	}
	ev.Kind = domain.EventKind(kind)
	ev.Timestamp = parseTime(ts)
	ev.RelatedTaskID = taskID.String
	ev.Decayed = decayed == 1
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]domain.CredibilityEvent, error) {
	var out []domain.CredibilityEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}
