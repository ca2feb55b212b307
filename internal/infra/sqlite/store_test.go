package sqlite

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/chorequest/chorequest/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureBalanceCreatesZeroRow(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	bal, err := db.Ops().EnsureBalance("kid", now)
	if err != nil {
		t.Fatalf("EnsureBalance: %v", err)
	}
	if bal.CurrentXP != 0 || bal.LifetimeEarned != 0 || bal.LifetimeSpent != 0 {
		t.Errorf("fresh balance not zero: %+v", bal)
	}
	if !bal.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", bal.CreatedAt, now)
	}

	// A second call returns the same row, not a reset.
	bal.CurrentXP = 50
	if err := db.Ops().UpdateBalance(bal); err != nil {
		t.Fatal(err)
	}
	again, err := db.Ops().EnsureBalance("kid", now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if again.CurrentXP != 50 {
		t.Errorf("CurrentXP = %d, want 50", again.CurrentXP)
	}
}

func TestTransactionNullableFields(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	score := 95
	txs := []*domain.XPTransaction{
		{ID: "tx-1", UserID: "kid", Type: domain.TxEarned, Amount: 12, Timestamp: now, RelatedTaskID: "task-1", CredibilityAtTime: &score},
		{ID: "tx-2", UserID: "kid", Type: domain.TxGranted, Amount: 50, Timestamp: now.Add(time.Minute), Notes: "bonus"},
	}
	for _, tx := range txs {
		if err := db.Ops().InsertTransaction(tx); err != nil {
			t.Fatalf("insert %s: %v", tx.ID, err)
		}
	}

	out, err := db.Ops().ListTransactions("kid", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d transactions, want 2", len(out))
	}
	// Newest first.
	if out[0].ID != "tx-2" {
		t.Errorf("order: first = %s, want tx-2", out[0].ID)
	}
	if out[0].CredibilityAtTime != nil {
		t.Errorf("grant should have nil credibility snapshot")
	}
	if out[1].CredibilityAtTime == nil || *out[1].CredibilityAtTime != 95 {
		t.Errorf("earned snapshot = %v, want 95", out[1].CredibilityAtTime)
	}
	if out[1].RelatedTaskID != "task-1" {
		t.Errorf("RelatedTaskID = %q", out[1].RelatedTaskID)
	}
}

func TestCredibilityDefaults(t *testing.T) {
	db := openTestDB(t)
	state, err := db.Ops().EnsureCredibility("kid", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if state.Score != domain.DefaultScore {
		t.Errorf("Score = %d, want %d", state.Score, domain.DefaultScore)
	}
	if state.ConsecutiveApprovedTasks != 0 || state.HasRedemptionBonus {
		t.Errorf("fresh state not default: %+v", state)
	}
}

func TestEventRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := db.Ops().InsertEvent(&domain.CredibilityEvent{
		UserID:        "kid",
		Kind:          domain.EventDownvote,
		Amount:        -15,
		Timestamp:     now,
		RelatedTaskID: "task-1",
	}, 7)
	if err != nil {
		t.Fatal(err)
	}

	ev, err := db.Ops().GetEvent(id)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Amount != -15 || ev.Kind != domain.EventDownvote || ev.RelatedTaskID != "task-1" {
		t.Errorf("round trip mismatch: %+v", ev)
	}
	if !ev.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, now)
	}

	streak, err := db.Ops().DownvotePriorStreak(id)
	if err != nil {
		t.Fatal(err)
	}
	if streak != 7 {
		t.Errorf("prior streak = %d, want 7", streak)
	}
}

func TestLatestUndecayedDownvote(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// None yet.
	ev, err := db.Ops().LatestUndecayedDownvote("kid")
	if err != nil {
		t.Fatal(err)
	}
	if ev != nil {
		t.Errorf("expected nil, got %+v", ev)
	}

	old, err := db.Ops().InsertEvent(&domain.CredibilityEvent{
		UserID: "kid", Kind: domain.EventDownvote, Amount: -10, Timestamp: now.Add(-48 * time.Hour),
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Ops().InsertEvent(&domain.CredibilityEvent{
		UserID: "kid", Kind: domain.EventDownvote, Amount: -10, Timestamp: now,
	}, 0); err != nil {
		t.Fatal(err)
	}

	ev, err = db.Ops().LatestUndecayedDownvote("kid")
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || !ev.Timestamp.Equal(now) {
		t.Fatalf("latest = %+v, want the newer entry", ev)
	}

	// A half-decayed entry no longer participates in the lookback.
	if err := db.Ops().MarkEventDecayed(ev.ID); err != nil {
		t.Fatal(err)
	}
	ev, err = db.Ops().LatestUndecayedDownvote("kid")
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || ev.ID != old {
		t.Errorf("latest after decay mark = %+v, want the older entry", ev)
	}
}

func TestListDecayableDownvotes(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := db.Ops().InsertEvent(&domain.CredibilityEvent{
		UserID: "kid", Kind: domain.EventDownvote, Amount: -10, Timestamp: now.Add(-31 * 24 * time.Hour),
	}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Ops().InsertEvent(&domain.CredibilityEvent{
		UserID: "kid", Kind: domain.EventDownvote, Amount: -10, Timestamp: now.Add(-time.Hour),
	}, 0); err != nil {
		t.Fatal(err)
	}
	// Non-downvote kinds never decay.
	if _, err := db.Ops().InsertEvent(&domain.CredibilityEvent{
		UserID: "kid", Kind: domain.EventApprovedTask, Amount: 2, Timestamp: now.Add(-40 * 24 * time.Hour),
	}, 0); err != nil {
		t.Fatal(err)
	}

	out, err := db.Ops().ListDecayableDownvotes(now.Add(-30*24*time.Hour), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("decayable = %d, want 1", len(out))
	}
	if out[0].Kind != domain.EventDownvote {
		t.Errorf("kind = %s, want downvote", out[0].Kind)
	}
}

func TestAssignmentRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)
	lvl := 4

	a := &domain.TaskAssignment{
		ID:            "task-1",
		TemplateID:    "dishes",
		ChildID:       "kid",
		AssignedBy:    "mom",
		Title:         "Do the dishes",
		Description:   "All of them",
		Category:      "kitchen",
		AssignedLevel: 2,
		AdjustedLevel: &lvl,
		Status:        domain.StatusAssigned,
		CreatedAt:     now,
		DueDate:       &due,
	}
	if err := db.Ops().InsertAssignment(a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.Ops().GetAssignment("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedBy != "mom" || got.AssignedLevel != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.AdjustedLevel == nil || *got.AdjustedLevel != 4 {
		t.Errorf("AdjustedLevel = %v, want 4", got.AdjustedLevel)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
	if got.StartedAt != nil || got.AppealDeadline != nil {
		t.Errorf("unset pointers came back non-nil: %+v", got)
	}

	// Self-claimed tasks keep AssignedBy empty through the round trip.
	b := &domain.TaskAssignment{
		ID: "task-2", TemplateID: "dishes", ChildID: "kid",
		Title: "Do the dishes", Status: domain.StatusAssigned, CreatedAt: now,
	}
	if err := db.Ops().InsertAssignment(b); err != nil {
		t.Fatal(err)
	}
	got, err = db.Ops().GetAssignment("task-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedBy != "" {
		t.Errorf("AssignedBy = %q, want empty", got.AssignedBy)
	}
}

func TestGetAssignmentMissing(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Ops().GetAssignment("nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestReviewAuthority(t *testing.T) {
	db := openTestDB(t)

	ok, err := db.Ops().HasReviewAuthority("mom", "kid")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("authority before grant")
	}

	if err := db.Ops().GrantReviewAuthority("mom", "kid"); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := db.Ops().GrantReviewAuthority("mom", "kid"); err != nil {
		t.Fatal(err)
	}

	ok, err = db.Ops().HasReviewAuthority("mom", "kid")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("authority not granted")
	}
	ok, _ = db.Ops().HasReviewAuthority("mom", "other-kid")
	if ok {
		t.Error("authority leaked to another child")
	}
}

func TestEarnedBadgeWriteOnce(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	awarded, err := db.Ops().InsertEarnedBadge("kid", "first_task", now)
	if err != nil {
		t.Fatal(err)
	}
	if !awarded {
		t.Error("first insert should award")
	}
	awarded, err = db.Ops().InsertEarnedBadge("kid", "first_task", now)
	if err != nil {
		t.Fatal(err)
	}
	if awarded {
		t.Error("second insert must not award again")
	}

	badges, err := db.Ops().ListEarnedBadges("kid")
	if err != nil {
		t.Fatal(err)
	}
	if len(badges) != 1 {
		t.Errorf("badges = %d, want 1", len(badges))
	}

	held, err := db.Ops().HasBadge("kid", "first_task")
	if err != nil {
		t.Fatal(err)
	}
	if !held {
		t.Error("HasBadge = false for a held badge")
	}
	held, err = db.Ops().HasBadge("kid", "streak_5")
	if err != nil {
		t.Fatal(err)
	}
	if held {
		t.Error("HasBadge = true for a badge never awarded")
	}
}

func TestWithTxRollback(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	wantErr := errors.New("boom")
	err := db.WithTx(func(ops *Ops) error {
		if _, err := ops.EnsureBalance("kid", now); err != nil {
			return err
		}
		if err := ops.InsertTransaction(&domain.XPTransaction{
			ID: "tx-1", UserID: "kid", Type: domain.TxEarned, Amount: 10, Timestamp: now,
		}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want boom", err)
	}

	// Nothing from the failed unit is visible.
	if _, err := db.Ops().GetBalance("kid"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("balance row survived rollback: err = %v", err)
	}
	txs, err := db.Ops().ListTransactions("kid", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Errorf("transaction survived rollback")
	}
}
