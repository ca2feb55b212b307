// Earned badge row operations.
package sqlite

import (
	"time"

	"github.com/chorequest/chorequest/internal/domain"
)

// InsertEarnedBadge records a badge award. Returns false when the child
// already holds the badge — the award is write-once and idempotent.
func (o *Ops) InsertEarnedBadge(childID, badgeType string, earnedAt time.Time) (bool, error) {
	res, err := o.q.Exec(`
		INSERT OR IGNORE INTO earned_badges (child_id, badge_type, earned_at)
		VALUES (?, ?, ?)
	`, childID, badgeType, formatTime(earnedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasBadge checks whether a child already holds a badge.
func (o *Ops) HasBadge(childID, badgeType string) (bool, error) {
	var n int
	err := o.q.QueryRow(`
		SELECT COUNT(*) FROM earned_badges WHERE child_id = ? AND badge_type = ?
	`, childID, badgeType).Scan(&n)
	return n > 0, err
}

// ListEarnedBadges returns a child's badges in award order.
func (o *Ops) ListEarnedBadges(childID string) ([]domain.EarnedBadge, error) {
	rows, err := o.q.Query(`
		SELECT child_id, badge_type, earned_at FROM earned_badges
		WHERE child_id = ? ORDER BY earned_at ASC
	`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EarnedBadge
	for rows.Next() {
		var b domain.EarnedBadge
		var earned string
		if err := rows.Scan(&b.ChildID, &b.BadgeType, &earned); err != nil {
			return nil, err
		}
		b.EarnedAt = parseTime(earned)
		out = append(out, b)
	}
	return out, rows.Err()
}
