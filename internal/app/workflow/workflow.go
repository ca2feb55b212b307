// Package workflow owns the lifecycle of a task assignment from claim to
// terminal state:
//
//	Assigned → InProgress → PendingReview → {Approved | Declined}
//	Declined → Appealed → {Approved | Declined}
//	Assigned/InProgress → Expired (due date passed first)
//
// A guardian decision fans out into the trust engine (score delta) and
// the ledger (XP credit) inside one transaction — a crash can never leave
// "credibility changed, XP didn't" behind. Only the claiming child may
// Start/Submit/Appeal; only a guardian with review authority over that
// child may Approve/Decline.
package workflow

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/chorequest/chorequest/internal/app/ledger"
	"github.com/chorequest/chorequest/internal/app/trust"
	"github.com/chorequest/chorequest/internal/app/userlock"
	"github.com/chorequest/chorequest/internal/domain"
	"github.com/chorequest/chorequest/internal/infra/observability"
	"github.com/chorequest/chorequest/internal/infra/sqlite"
)

// Service is the verification workflow.
type Service struct {
	db      *sqlite.DB
	locks   *userlock.Registry
	trust   *trust.Engine
	ledger  *ledger.Service
	catalog domain.TemplateCatalog
	sink    domain.EventSink

	// Injectable clock for testing.
	now func() time.Time
}

// New creates the workflow service.
func New(db *sqlite.DB, locks *userlock.Registry, tr *trust.Engine, led *ledger.Service, cat domain.TemplateCatalog, sink domain.EventSink) *Service {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &Service{
		db:      db,
		locks:   locks,
		trust:   tr,
		ledger:  led,
		catalog: cat,
		sink:    sink,
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests only).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ─── Claim ──────────────────────────────────────────────────────────────────

// ClaimRequest creates a new assignment. AssignedBy is empty when the
// child self-claims.
type ClaimRequest struct {
	TemplateID string
	ChildID    string
	AssignedBy string
	Level      int
	DueDate    *time.Time
}

// Claim instantiates a template as an Assigned task for a child.
func (s *Service) Claim(req ClaimRequest) (*domain.TaskAssignment, error) {
	if req.ChildID == "" {
		return nil, domain.Validationf("child id must not be empty")
	}
	if req.Level < 1 {
		req.Level = 1
	}

	tmpl, err := s.catalog.GetTemplate(req.TemplateID)
	if err != nil {
		return nil, err
	}

	a := &domain.TaskAssignment{
		ID:            uuid.NewString(),
		TemplateID:    tmpl.ID,
		ChildID:       req.ChildID,
		AssignedBy:    req.AssignedBy,
		Title:         tmpl.Title,
		Description:   tmpl.Description,
		Category:      tmpl.Category,
		AssignedLevel: req.Level,
		Status:        domain.StatusAssigned,
		CreatedAt:     s.now(),
		DueDate:       req.DueDate,
	}
	if err := s.db.Ops().InsertAssignment(a); err != nil {
		return nil, domain.Persistencef("insert assignment", err)
	}
	return a, nil
}

// ─── Child Transitions ──────────────────────────────────────────────────────

// Start moves Assigned → InProgress. Only the claiming child may start.
func (s *Service) Start(assignmentID, childID string) (*domain.TaskAssignment, error) {
	return s.childTransition(assignmentID, childID, func(a *domain.TaskAssignment) error {
		if a.Status != domain.StatusAssigned {
			return domain.Conflictf("cannot start task in status %s", a.Status)
		}
		now := s.now()
		a.Status = domain.StatusInProgress
		a.StartedAt = &now
		return nil
	})
}

// Submit moves InProgress → PendingReview. Evidence is mandatory — no
// photo, no transition.
func (s *Service) Submit(assignmentID, childID, photoURL, notes string, minutesTaken int) (*domain.TaskAssignment, error) {
	if photoURL == "" {
		return nil, domain.Validationf("evidence photo is required")
	}
	return s.childTransition(assignmentID, childID, func(a *domain.TaskAssignment) error {
		if a.Status != domain.StatusInProgress {
			return domain.Conflictf("cannot submit task in status %s", a.Status)
		}
		now := s.now()
		a.Status = domain.StatusPendingReview
		a.CompletedAt = &now
		a.PhotoURL = photoURL
		a.ChildNotes = notes
		if minutesTaken > 0 {
			a.CompletionTimeMinutes = minutesTaken
		}
		return nil
	})
}

// Appeal contests a decline, valid only strictly before the 24h appeal
// deadline. At or after that instant it fails with no state change.
func (s *Service) Appeal(assignmentID, childID, childNotes string) (*domain.TaskAssignment, error) {
	a, err := s.childTransition(assignmentID, childID, func(a *domain.TaskAssignment) error {
		if a.Status != domain.StatusDeclined {
			return domain.Conflictf("cannot appeal task in status %s", a.Status)
		}
		if a.AppealDeadline == nil || !s.now().Before(*a.AppealDeadline) {
			return domain.Conflictf("appeal window closed")
		}
		a.Status = domain.StatusAppealed
		if childNotes != "" {
			a.ChildNotes = childNotes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Appeals.Inc()
	return a, nil
}

// childTransition loads, validates ownership, mutates, and stores an
// assignment under the child's lock.
func (s *Service) childTransition(assignmentID, childID string, mutate func(*domain.TaskAssignment) error) (*domain.TaskAssignment, error) {
	defer s.locks.Lock(childID)()

	var out *domain.TaskAssignment
	err := s.db.WithTx(func(ops *sqlite.Ops) error {
		a, err := s.load(ops, assignmentID)
		if err != nil {
			return err
		}
		if a.ChildID != childID {
			return domain.Validationf("task %s is not owned by %s", assignmentID, childID)
		}
		if err := mutate(a); err != nil {
			return err
		}
		if err := ops.UpdateAssignment(a); err != nil {
			return domain.Persistencef("update assignment", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ─── Guardian Decisions ─────────────────────────────────────────────────────

// Approve accepts a submitted (or appealed) task. One transaction covers
// the score update and the XP credit; the payout is the template's base
// XP at the effective level scaled by the child's multiplier at decision
// time.
//
// Approving an appealed task retracts the earlier decline first — the
// recorded penalty is given back exactly, then the approval applies.
func (s *Service) Approve(assignmentID, reviewerID, notes string, levelOverride *int) (*domain.TaskAssignment, error) {
	var (
		out      *domain.TaskAssignment
		trustRes *trust.Result
	)

	childID, err := s.childOf(assignmentID)
	if err != nil {
		return nil, err
	}
	defer s.locks.Lock(childID)()

	err = s.db.WithTx(func(ops *sqlite.Ops) error {
		a, err := s.load(ops, assignmentID)
		if err != nil {
			return err
		}
		if !a.Reviewable() {
			return domain.Conflictf("cannot approve task in status %s", a.Status)
		}
		if err := s.checkAuthority(ops, reviewerID, a.ChildID); err != nil {
			return err
		}

		wasAppealed := a.Status == domain.StatusAppealed
		if wasAppealed {
			if err := s.trust.UndoDeclineTx(ops, a.ChildID, a.ID); err != nil {
				return err
			}
		}

		trustRes, err = s.trust.ApplyApprovalTx(ops, a.ChildID, a.ID)
		if err != nil {
			return err
		}

		if levelOverride != nil {
			a.AdjustedLevel = levelOverride
		}
		tmpl, err := s.catalog.GetTemplate(a.TemplateID)
		if err != nil {
			return err
		}
		baseXP := tmpl.BaseXP(a.EffectiveLevel())

		// Multiplier and snapshot reflect the score the guardian saw.
		scoreAt := trustRes.ScoreBefore
		multiplier := domain.TierFor(scoreAt).Multiplier
		awarded, err := s.ledger.EarnTx(ops, a.ChildID, baseXP, multiplier, a.ID, &scoreAt)
		if err != nil {
			return err
		}

		now := s.now()
		a.Status = domain.StatusApproved
		a.ReviewedAt = &now
		a.ReviewedBy = reviewerID
		a.ParentNotes = notes
		a.ReviewDecision = domain.DecisionApproved
		a.XPAwarded = awarded
		a.AppealDeadline = nil
		if err := ops.UpdateAssignment(a); err != nil {
			return domain.Persistencef("update assignment", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ReviewDecisions.WithLabelValues("approved").Inc()
	s.trust.PublishBonus(out.ChildID, trustRes)
	s.sink.Publish(domain.Event{
		Type:      domain.EventTaskApproved,
		UserID:    out.ChildID,
		TaskID:    out.ID,
		XPAwarded: out.XPAwarded,
		Score:     trustRes.ScoreAfter,
		Timestamp: s.now(),
	})
	return out, nil
}

// Decline rejects a submitted (or appealed) task. The reason is required.
// A declined task stays appealable for 24 hours.
//
// Declining an appeal confirms the original decision — the penalty
// already on the books is not applied a second time.
func (s *Service) Decline(assignmentID, reviewerID, reason string) (*domain.TaskAssignment, error) {
	if reason == "" {
		return nil, domain.Validationf("decline reason must not be empty")
	}

	childID, err := s.childOf(assignmentID)
	if err != nil {
		return nil, err
	}
	defer s.locks.Lock(childID)()

	var (
		out      *domain.TaskAssignment
		trustRes *trust.Result
	)
	err = s.db.WithTx(func(ops *sqlite.Ops) error {
		a, err := s.load(ops, assignmentID)
		if err != nil {
			return err
		}
		if !a.Reviewable() {
			return domain.Conflictf("cannot decline task in status %s", a.Status)
		}
		if err := s.checkAuthority(ops, reviewerID, a.ChildID); err != nil {
			return err
		}

		if a.Status != domain.StatusAppealed {
			trustRes, err = s.trust.ApplyDeclineTx(ops, a.ChildID, a.ID)
			if err != nil {
				return err
			}
		}

		now := s.now()
		deadline := now.Add(domain.AppealWindow)
		a.Status = domain.StatusDeclined
		a.ReviewedAt = &now
		a.ReviewedBy = reviewerID
		a.ParentNotes = reason
		a.ReviewDecision = domain.DecisionDeclined
		a.XPAwarded = 0
		a.AppealDeadline = &deadline
		if err := ops.UpdateAssignment(a); err != nil {
			return domain.Persistencef("update assignment", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ReviewDecisions.WithLabelValues("declined").Inc()
	score := 0
	if trustRes != nil {
		score = trustRes.ScoreAfter
	}
	s.sink.Publish(domain.Event{
		Type:      domain.EventTaskDeclined,
		UserID:    out.ChildID,
		TaskID:    out.ID,
		Score:     score,
		Timestamp: s.now(),
	})
	return out, nil
}

// ─── Expiry Sweep ───────────────────────────────────────────────────────────

// ExpireSweep transitions Assigned/InProgress tasks whose due date has
// passed to Expired. No credibility or XP effect. Returns the count
// expired. Purely corrective — safe to run on any interval or skip.
func (s *Service) ExpireSweep() (int, error) {
	now := s.now()
	expirable, err := s.db.Ops().ListExpirable(now)
	if err != nil {
		return 0, domain.Persistencef("list expirable", err)
	}

	expired := 0
	for i := range expirable {
		a := &expirable[i]
		unlock := s.locks.Lock(a.ChildID)

		err := s.db.WithTx(func(ops *sqlite.Ops) error {
			fresh, err := s.load(ops, a.ID)
			if err != nil {
				return err
			}
			// Re-check: the child may have submitted since the snapshot.
			if fresh.Status != domain.StatusAssigned && fresh.Status != domain.StatusInProgress {
				return nil
			}
			if fresh.DueDate == nil || !fresh.DueDate.Before(now) {
				return nil
			}
			fresh.Status = domain.StatusExpired
			if err := ops.UpdateAssignment(fresh); err != nil {
				return domain.Persistencef("update assignment", err)
			}
			expired++
			observability.TasksExpired.Inc()
			return nil
		})
		unlock()
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Get returns one assignment.
func (s *Service) Get(assignmentID string) (*domain.TaskAssignment, error) {
	return s.load(s.db.Ops(), assignmentID)
}

// ListByChild returns a child's assignments, newest first.
func (s *Service) ListByChild(childID string, limit int) ([]domain.TaskAssignment, error) {
	out, err := s.db.Ops().ListAssignmentsByChild(childID, limit)
	if err != nil {
		return nil, domain.Persistencef("list assignments", err)
	}
	return out, nil
}

// PendingReviews returns the review queue for a guardian, oldest
// submission first.
func (s *Service) PendingReviews(reviewerID string) ([]domain.TaskAssignment, error) {
	out, err := s.db.Ops().ListPendingForReviewer(reviewerID)
	if err != nil {
		return nil, domain.Persistencef("list pending reviews", err)
	}
	return out, nil
}

// GrantReviewAuthority lets a guardian review a child's submissions.
func (s *Service) GrantReviewAuthority(guardianID, childID string) error {
	if guardianID == "" || childID == "" {
		return domain.Validationf("guardian and child ids must not be empty")
	}
	if err := s.db.Ops().GrantReviewAuthority(guardianID, childID); err != nil {
		return domain.Persistencef("grant review authority", err)
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Service) load(ops *sqlite.Ops, assignmentID string) (*domain.TaskAssignment, error) {
	a, err := ops.GetAssignment(assignmentID)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("assignment %q", assignmentID)
	}
	if err != nil {
		return nil, domain.Persistencef("load assignment", err)
	}
	return a, nil
}

func (s *Service) childOf(assignmentID string) (string, error) {
	a, err := s.load(s.db.Ops(), assignmentID)
	if err != nil {
		return "", err
	}
	return a.ChildID, nil
}

func (s *Service) checkAuthority(ops *sqlite.Ops, reviewerID, childID string) error {
	ok, err := ops.HasReviewAuthority(reviewerID, childID)
	if err != nil {
		return domain.Persistencef("check review authority", err)
	}
	if !ok {
		return domain.Validationf("reviewer %s has no authority over %s", reviewerID, childID)
	}
	return nil
}
