package badges

import (
	"fmt"
	"testing"
	"time"

	"github.com/chorequest/chorequest/internal/app/ledger"
	"github.com/chorequest/chorequest/internal/app/trust"
	"github.com/chorequest/chorequest/internal/app/userlock"
	"github.com/chorequest/chorequest/internal/app/workflow"
	"github.com/chorequest/chorequest/internal/domain"
	"github.com/chorequest/chorequest/internal/infra/catalog"
	"github.com/chorequest/chorequest/internal/infra/sqlite"
)

type fixture struct {
	db       *sqlite.DB
	ledger   *ledger.Service
	trust    *trust.Engine
	workflow *workflow.Service
	tracker  *Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	locks := userlock.NewRegistry()
	led := ledger.New(db, locks)
	tr := trust.New(db, locks, nil)
	wf := workflow.New(db, locks, tr, led, catalog.New(), nil)
	if err := wf.GrantReviewAuthority("mom", "kid"); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		db:       db,
		ledger:   led,
		trust:    tr,
		workflow: wf,
		tracker:  New(db, locks, led, tr, nil),
	}
}

// approveTask drives one assignment through to approval.
func (f *fixture) approveTask(t *testing.T) {
	t.Helper()
	a, err := f.workflow.Claim(workflow.ClaimRequest{TemplateID: "make-bed", ChildID: "kid", Level: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.workflow.Start(a.ID, "kid"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.workflow.Submit(a.ID, "kid", "evidence://sha256:x", "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.workflow.Approve(a.ID, "mom", "", nil); err != nil {
		t.Fatal(err)
	}
}

func hasBadge(badges []domain.EarnedBadge, badgeType string) bool {
	for _, b := range badges {
		if b.BadgeType == badgeType {
			return true
		}
	}
	return false
}

func TestFirstTaskBadge(t *testing.T) {
	f := newFixture(t)
	f.approveTask(t)

	balBefore, _ := f.ledger.Balance("kid")

	earned, err := f.tracker.EvaluateBadges("kid")
	if err != nil {
		t.Fatalf("EvaluateBadges: %v", err)
	}
	if !hasBadge(earned, "first_task") {
		t.Fatalf("first_task not awarded, got %+v", earned)
	}

	// The badge bonus lands as an out-of-band grant.
	balAfter, _ := f.ledger.Balance("kid")
	if balAfter.CurrentXP != balBefore.CurrentXP+10 {
		t.Errorf("balance = %d, want %d", balAfter.CurrentXP, balBefore.CurrentXP+10)
	}
}

func TestBadgeIdempotent(t *testing.T) {
	f := newFixture(t)
	f.approveTask(t)

	if _, err := f.tracker.EvaluateBadges("kid"); err != nil {
		t.Fatal(err)
	}
	balAfterFirst, _ := f.ledger.Balance("kid")

	// Re-evaluating with no new progress awards nothing and pays nothing.
	earned, err := f.tracker.EvaluateBadges("kid")
	if err != nil {
		t.Fatal(err)
	}
	if len(earned) != 0 {
		t.Errorf("re-evaluation awarded %+v", earned)
	}
	bal, _ := f.ledger.Balance("kid")
	if bal.CurrentXP != balAfterFirst.CurrentXP {
		t.Errorf("balance changed on re-evaluation: %d → %d", balAfterFirst.CurrentXP, bal.CurrentXP)
	}
}

func TestFailedBonusRollsBackBadge(t *testing.T) {
	f := newFixture(t)
	f.approveTask(t)

	// A bonus outside the grant limits makes the payout fail after the
	// badge row is written in the same transaction.
	saved := Definitions
	t.Cleanup(func() { Definitions = saved })
	broken := make([]domain.BadgeDefinition, len(saved))
	copy(broken, saved)
	broken[0].BonusXP = ledger.MaxGrant + 100
	Definitions = broken

	balBefore, _ := f.ledger.Balance("kid")
	if _, err := f.tracker.EvaluateBadges("kid"); err == nil {
		t.Fatal("EvaluateBadges should fail when the bonus grant fails")
	}

	// Neither half of the award may survive: no badge held, no XP paid.
	held, err := f.tracker.Earned("kid")
	if err != nil {
		t.Fatal(err)
	}
	if hasBadge(held, "first_task") {
		t.Fatal("badge held despite failed bonus grant")
	}
	bal, _ := f.ledger.Balance("kid")
	if bal.CurrentXP != balBefore.CurrentXP {
		t.Errorf("balance changed on failed award: %d → %d", balBefore.CurrentXP, bal.CurrentXP)
	}

	// Once the catalog is sane again the award retries in full.
	Definitions = saved
	earned, err := f.tracker.EvaluateBadges("kid")
	if err != nil {
		t.Fatalf("EvaluateBadges after repair: %v", err)
	}
	if !hasBadge(earned, "first_task") {
		t.Fatalf("first_task not awarded on retry, got %+v", earned)
	}
	balAfter, _ := f.ledger.Balance("kid")
	if balAfter.CurrentXP != balBefore.CurrentXP+10 {
		t.Errorf("balance = %d, want %d", balAfter.CurrentXP, balBefore.CurrentXP+10)
	}
}

func TestStreakBadge(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		if _, err := f.trust.ApplyApproval("kid", fmt.Sprintf("task-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	earned, err := f.tracker.EvaluateBadges("kid")
	if err != nil {
		t.Fatal(err)
	}
	if !hasBadge(earned, "streak_5") {
		t.Errorf("streak_5 not awarded, got %+v", earned)
	}
	if hasBadge(earned, "streak_10") {
		t.Errorf("streak_10 awarded at streak 5")
	}
}

func TestLifetimeXPBadge(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Grant("kid", 500, "test top-up"); err != nil {
		t.Fatal(err)
	}

	earned, err := f.tracker.EvaluateBadges("kid")
	if err != nil {
		t.Fatal(err)
	}
	if !hasBadge(earned, "xp_500") {
		t.Errorf("xp_500 not awarded, got %+v", earned)
	}
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	f.approveTask(t)
	if _, err := f.tracker.EvaluateBadges("kid"); err != nil {
		t.Fatal(err)
	}

	progress, err := f.tracker.Progress("kid")
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != len(Definitions) {
		t.Fatalf("progress entries = %d, want %d", len(progress), len(Definitions))
	}
	for _, p := range progress {
		switch p.Definition.Type {
		case "first_task":
			if !p.IsEarned || p.Current != 1 {
				t.Errorf("first_task progress = %+v, want earned 1/1", p)
			}
		case "ten_tasks":
			if p.IsEarned || p.Current != 1 {
				t.Errorf("ten_tasks progress = %+v, want unearned 1/10", p)
			}
		}
		if p.Current > p.Target {
			t.Errorf("%s current %d exceeds target %d", p.Definition.Type, p.Current, p.Target)
		}
	}
}

func TestEarnedOrder(t *testing.T) {
	f := newFixture(t)
	f.approveTask(t)
	if _, err := f.tracker.EvaluateBadges("kid"); err != nil {
		t.Fatal(err)
	}

	earned, err := f.tracker.Earned("kid")
	if err != nil {
		t.Fatal(err)
	}
	if len(earned) == 0 {
		t.Fatal("no badges recorded")
	}
	for _, b := range earned {
		if b.EarnedAt.IsZero() || b.EarnedAt.After(time.Now().Add(time.Minute)) {
			t.Errorf("implausible EarnedAt: %v", b.EarnedAt)
		}
	}
}
