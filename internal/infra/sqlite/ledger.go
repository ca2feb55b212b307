// XP balance and transaction row operations.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/chorequest/chorequest/internal/domain"
)

// ─── Balance Operations ─────────────────────────────────────────────────────

// EnsureBalance returns the user's balance, creating a zero row on first
// reference.
func (o *Ops) EnsureBalance(userID string, now time.Time) (*domain.XPBalance, error) {
	b, err := o.GetBalance(userID)
	if err == nil {
		return b, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	_, err = o.q.Exec(`
		INSERT INTO xp_balances (user_id, current_xp, lifetime_earned, lifetime_spent, created_at, last_updated)
		VALUES (?, 0, 0, 0, ?, ?)
	`, userID, formatTime(now), formatTime(now))
	if err != nil {
		return nil, err
	}
	return &domain.XPBalance{UserID: userID, CreatedAt: now, LastUpdated: now}, nil
}

// GetBalance reads a user's balance. Returns sql.ErrNoRows if absent.
func (o *Ops) GetBalance(userID string) (*domain.XPBalance, error) {
	var b domain.XPBalance
	var created, updated string
	err := o.q.QueryRow(`
		SELECT user_id, current_xp, lifetime_earned, lifetime_spent, created_at, last_updated
		FROM xp_balances WHERE user_id = ?
	`, userID).Scan(&b.UserID, &b.CurrentXP, &b.LifetimeEarned, &b.LifetimeSpent, &created, &updated)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = parseTime(created)
	b.LastUpdated = parseTime(updated)
	return &b, nil
}

// UpdateBalance writes back a mutated balance row.
func (o *Ops) UpdateBalance(b *domain.XPBalance) error {
	_, err := o.q.Exec(`
		UPDATE xp_balances
		SET current_xp = ?, lifetime_earned = ?, lifetime_spent = ?, last_updated = ?
		WHERE user_id = ?
	`, b.CurrentXP, b.LifetimeEarned, b.LifetimeSpent, formatTime(b.LastUpdated), b.UserID)
	return err
}

// ─── Transaction Log Operations ─────────────────────────────────────────────

// InsertTransaction appends one immutable row to the XP log.
func (o *Ops) InsertTransaction(tx *domain.XPTransaction) error {
	var cred any
	if tx.CredibilityAtTime != nil {
		cred = *tx.CredibilityAtTime
	}
	_, err := o.q.Exec(`
		INSERT INTO xp_transactions (id, user_id, type, amount, timestamp, related_task_id, credibility_at_time, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.UserID, string(tx.Type), tx.Amount, formatTime(tx.Timestamp),
		nullableString(tx.RelatedTaskID), cred, tx.Notes)
	return err
}

// ListTransactions returns a user's transactions, newest first.
func (o *Ops) ListTransactions(userID string, limit int) ([]domain.XPTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.q.Query(`
		SELECT id, user_id, type, amount, timestamp, related_task_id, credibility_at_time, notes
		FROM xp_transactions WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.XPTransaction
	for rows.Next() {
		var tx domain.XPTransaction
		var typ, ts string
		var taskID, notes sql.NullString
		var cred sql.NullInt64
		if err := rows.Scan(&tx.ID, &tx.UserID, &typ, &tx.Amount, &ts, &taskID, &cred, &notes); err != nil {
			return nil, err
		}
		tx.Type = domain.TransactionType(typ)
		tx.Timestamp = parseTime(ts)
		tx.RelatedTaskID = taskID.String
		tx.Notes = notes.String
		if cred.Valid {
			c := int(cred.Int64)
			tx.CredibilityAtTime = &c
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
