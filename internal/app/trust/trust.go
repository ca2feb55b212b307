// Package trust implements the credibility engine: a 0–100 trust score
// per user that throttles how much XP a task payout actually yields.
//
// Score movement:
//   - approval:      +2, streak++; every 10th consecutive approval adds
//     a separate +5 streak bonus entry in the same operation
//   - decline:       streak reset; −10, or −15 when the previous active
//     downvote landed within the last 7 days (stacking)
//   - decay sweep:   downvotes older than 30 days give back half their
//     magnitude once; older than 60 days give back the rest and move to
//     the archive
//   - undo:          exact inverse of the recorded entries, never a
//     recomputation — stacking makes deltas history-dependent
//
// A recovery from below 60 up to 95 or more activates a 7-day redemption
// bonus multiplying the XP→minutes conversion rate by 1.3.
package trust

import (
	"database/sql"
	"log"
	"time"

	"github.com/chorequest/chorequest/internal/app/userlock"
	"github.com/chorequest/chorequest/internal/domain"
	"github.com/chorequest/chorequest/internal/infra/observability"
	"github.com/chorequest/chorequest/internal/infra/sqlite"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// ApprovalPoints is the score gain per approved task.
	ApprovalPoints = 2

	// StreakBonusPoints is the extra gain at every StreakBonusEvery-th
	// consecutive approval.
	StreakBonusPoints = 5
	StreakBonusEvery  = 10

	// BasePenalty and StackedPenalty are decline magnitudes. The stacked
	// penalty applies when the previous active downvote is within
	// StackWindow.
	BasePenalty    = 10
	StackedPenalty = 15
	StackWindow    = 7 * 24 * time.Hour

	// HalfDecayAfter and FullDecayAfter gate the two decay stages.
	HalfDecayAfter = 30 * 24 * time.Hour
	FullDecayAfter = 60 * 24 * time.Hour

	// Redemption bonus: activated when one operation moves the score from
	// below RecoveryFloor to RecoveryTarget or above.
	RecoveryFloor           = 60
	RecoveryTarget          = 95
	RedemptionBonusRate     = 1.3
	RedemptionBonusDuration = 7 * 24 * time.Hour
)

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine manages credibility for all users. Mutations serialize per user
// through the shared lock registry; each operation's history entries land
// in one transaction.
type Engine struct {
	db    *sqlite.DB
	locks *userlock.Registry
	sink  domain.EventSink

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a credibility engine.
func New(db *sqlite.DB, locks *userlock.Registry, sink domain.EventSink) *Engine {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &Engine{db: db, locks: locks, sink: sink, now: time.Now}
}

// SetClock overrides the time source (tests only).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Result describes what one operation did to a user's score.
type Result struct {
	ScoreBefore    int
	ScoreAfter     int
	StreakAfter    int
	BonusActivated bool
}

// ─── Approval ───────────────────────────────────────────────────────────────

// ApplyApproval credits an approved task: +2, streak increment, and the
// +5 streak bonus as a second entry at exact multiples of 10.
func (e *Engine) ApplyApproval(userID, taskID string) (*Result, error) {
	defer e.locks.Lock(userID)()

	var res *Result
	err := e.db.WithTx(func(ops *sqlite.Ops) error {
		var err error
		res, err = e.ApplyApprovalTx(ops, userID, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.PublishBonus(userID, res)
	return res, nil
}

// ApplyApprovalTx is the transactional core of ApplyApproval, for callers
// composing a larger atomic unit. The caller must hold the user's lock,
// supply an open transaction, and publish bonus events after commit.
func (e *Engine) ApplyApprovalTx(ops *sqlite.Ops, userID, taskID string) (*Result, error) {
	now := e.now()
	state, err := ops.EnsureCredibility(userID, now)
	if err != nil {
		return nil, domain.Persistencef("load credibility", err)
	}

	before := state.Score
	state.Score = domain.ClampScore(state.Score + ApprovalPoints)
	state.ConsecutiveApprovedTasks++

	_, err = ops.InsertEvent(&domain.CredibilityEvent{
		UserID:        userID,
		Kind:          domain.EventApprovedTask,
		Amount:        ApprovalPoints,
		Timestamp:     now,
		RelatedTaskID: taskID,
	}, 0)
	if err != nil {
		return nil, domain.Persistencef("append event", err)
	}
	observability.CredibilityDeltas.WithLabelValues(string(domain.EventApprovedTask)).Inc()

	// Every 10th consecutive approval earns a separate bonus entry
	// within the same operation.
	if state.ConsecutiveApprovedTasks%StreakBonusEvery == 0 {
		state.Score = domain.ClampScore(state.Score + StreakBonusPoints)
		_, err = ops.InsertEvent(&domain.CredibilityEvent{
			UserID:        userID,
			Kind:          domain.EventStreakBonus,
			Amount:        StreakBonusPoints,
			Timestamp:     now,
			RelatedTaskID: taskID,
		}, 0)
		if err != nil {
			return nil, domain.Persistencef("append event", err)
		}
		observability.CredibilityDeltas.WithLabelValues(string(domain.EventStreakBonus)).Inc()
	}

	res := &Result{ScoreBefore: before, ScoreAfter: state.Score, StreakAfter: state.ConsecutiveApprovedTasks}
	res.BonusActivated = e.maybeActivateBonus(state, before, now)

	state.UpdatedAt = now
	if err := ops.UpdateCredibility(state); err != nil {
		return nil, domain.Persistencef("update credibility", err)
	}
	return res, nil
}

// ─── Decline ────────────────────────────────────────────────────────────────

// ApplyDecline penalizes a declined task: streak reset and a stacking
// penalty (−10, or −15 when the previous active downvote is within 7
// days).
func (e *Engine) ApplyDecline(userID, taskID, reason string) (*Result, error) {
	if reason == "" {
		return nil, domain.Validationf("decline reason must not be empty")
	}

	defer e.locks.Lock(userID)()

	var res *Result
	err := e.db.WithTx(func(ops *sqlite.Ops) error {
		var err error
		res, err = e.ApplyDeclineTx(ops, userID, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyDeclineTx is the transactional core of ApplyDecline. The caller
// must hold the user's lock and supply an open transaction.
func (e *Engine) ApplyDeclineTx(ops *sqlite.Ops, userID, taskID string) (*Result, error) {
	now := e.now()
	state, err := ops.EnsureCredibility(userID, now)
	if err != nil {
		return nil, domain.Persistencef("load credibility", err)
	}

	penalty := BasePenalty
	prior, err := ops.LatestUndecayedDownvote(userID)
	if err != nil {
		return nil, domain.Persistencef("stacking lookback", err)
	}
	if prior != nil && now.Sub(prior.Timestamp) <= StackWindow {
		penalty = StackedPenalty
	}

	before := state.Score
	priorStreak := state.ConsecutiveApprovedTasks
	state.Score = domain.ClampScore(state.Score - penalty)
	state.ConsecutiveApprovedTasks = 0
	state.UpdatedAt = now

	_, err = ops.InsertEvent(&domain.CredibilityEvent{
		UserID:        userID,
		Kind:          domain.EventDownvote,
		Amount:        -penalty,
		Timestamp:     now,
		RelatedTaskID: taskID,
	}, priorStreak)
	if err != nil {
		return nil, domain.Persistencef("append event", err)
	}
	observability.CredibilityDeltas.WithLabelValues(string(domain.EventDownvote)).Inc()

	if err := ops.UpdateCredibility(state); err != nil {
		return nil, domain.Persistencef("update credibility", err)
	}
	return &Result{ScoreBefore: before, ScoreAfter: state.Score, StreakAfter: 0}, nil
}

// ─── Undo ───────────────────────────────────────────────────────────────────

// UndoApproval retracts an approval: reverses the +2 (and the +5 streak
// bonus if that approval triggered one) exactly as recorded, and steps
// the streak back.
func (e *Engine) UndoApproval(userID, taskID string) error {
	defer e.locks.Lock(userID)()

	return e.db.WithTx(func(ops *sqlite.Ops) error {
		return e.UndoApprovalTx(ops, userID, taskID)
	})
}

// UndoApprovalTx is the transactional core of UndoApproval.
func (e *Engine) UndoApprovalTx(ops *sqlite.Ops, userID, taskID string) error {
	now := e.now()
	state, err := ops.EnsureCredibility(userID, now)
	if err != nil {
		return domain.Persistencef("load credibility", err)
	}

	events, err := ops.EventsForTask(userID, taskID)
	if err != nil {
		return domain.Persistencef("load task events", err)
	}

	reversed := 0
	for _, ev := range events {
		if ev.Kind != domain.EventApprovedTask && ev.Kind != domain.EventStreakBonus {
			continue
		}
		reversed += ev.Amount
		if err := ops.DeleteEvent(ev.ID); err != nil {
			return domain.Persistencef("delete event", err)
		}
	}
	if reversed == 0 {
		return domain.Conflictf("no approval recorded for task %s", taskID)
	}

	state.Score = domain.ClampScore(state.Score - reversed)
	if state.ConsecutiveApprovedTasks > 0 {
		state.ConsecutiveApprovedTasks--
	}
	state.UpdatedAt = now

	_, err = ops.InsertEvent(&domain.CredibilityEvent{
		UserID:        userID,
		Kind:          domain.EventUndo,
		Amount:        -reversed,
		Timestamp:     now,
		RelatedTaskID: taskID,
	}, 0)
	if err != nil {
		return domain.Persistencef("append event", err)
	}

	return ops.UpdateCredibility(state)
}

// UndoDecline retracts a decline: gives back the penalty magnitude that
// was actually applied (−10 or −15, whichever the history records) and
// restores the streak the decline reset.
func (e *Engine) UndoDecline(userID, taskID string) error {
	defer e.locks.Lock(userID)()

	return e.db.WithTx(func(ops *sqlite.Ops) error {
		return e.UndoDeclineTx(ops, userID, taskID)
	})
}

// UndoDeclineTx is the transactional core of UndoDecline.
func (e *Engine) UndoDeclineTx(ops *sqlite.Ops, userID, taskID string) error {
	now := e.now()
	state, err := ops.EnsureCredibility(userID, now)
	if err != nil {
		return domain.Persistencef("load credibility", err)
	}

	events, err := ops.EventsForTask(userID, taskID)
	if err != nil {
		return domain.Persistencef("load task events", err)
	}

	var downvote *domain.CredibilityEvent
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == domain.EventDownvote {
			downvote = &events[i]
			break
		}
	}
	if downvote == nil {
		return domain.Conflictf("no decline recorded for task %s", taskID)
	}

	priorStreak, err := ops.DownvotePriorStreak(downvote.ID)
	if err != nil {
		return domain.Persistencef("load prior streak", err)
	}

	// Give back what the decayed stages have not already returned.
	magnitude := -downvote.Amount
	remaining := magnitude
	if downvote.Decayed {
		remaining = magnitude - magnitude/2
	}

	state.Score = domain.ClampScore(state.Score + remaining)
	state.ConsecutiveApprovedTasks = priorStreak
	state.UpdatedAt = now

	if err := ops.DeleteEvent(downvote.ID); err != nil {
		return domain.Persistencef("delete event", err)
	}
	_, err = ops.InsertEvent(&domain.CredibilityEvent{
		UserID:        userID,
		Kind:          domain.EventUndo,
		Amount:        remaining,
		Timestamp:     now,
		RelatedTaskID: taskID,
	}, 0)
	if err != nil {
		return domain.Persistencef("append event", err)
	}

	return ops.UpdateCredibility(state)
}

// ─── Decay Sweep ────────────────────────────────────────────────────────────

// ApplyDecay runs the periodic forgiveness sweep over every user's active
// downvotes. Entries past 30 days give back half their magnitude once;
// entries past 60 days give back the remainder and move to the archive.
// Idempotent per entry and per stage. Returns the number of entries
// processed.
func (e *Engine) ApplyDecay() (int, error) {
	now := e.now()

	// Snapshot the candidates, then process each user under their lock.
	candidates, err := e.db.Ops().ListDecayableDownvotes(now.Add(-HalfDecayAfter), true)
	if err != nil {
		return 0, domain.Persistencef("list decayable downvotes", err)
	}

	byUser := make(map[string][]domain.CredibilityEvent)
	var order []string
	for _, ev := range candidates {
		if _, seen := byUser[ev.UserID]; !seen {
			order = append(order, ev.UserID)
		}
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}

	processed := 0
	for _, userID := range order {
		n, err := e.decayUser(userID, byUser[userID], now)
		if err != nil {
			log.Printf("trust: decay sweep for %s: %v", userID, err)
			continue
		}
		processed += n
	}
	return processed, nil
}

func (e *Engine) decayUser(userID string, entries []domain.CredibilityEvent, now time.Time) (int, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	processed := 0
	var res *Result
	err := e.db.WithTx(func(ops *sqlite.Ops) error {
		state, err := ops.EnsureCredibility(userID, now)
		if err != nil {
			return domain.Persistencef("load credibility", err)
		}
		before := state.Score

		for _, ev := range entries {
			// Re-read: the snapshot may be stale (an undo could have
			// removed the entry since).
			live, err := ops.GetEvent(ev.ID)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return domain.Persistencef("reload entry", err)
			}

			restore, done, err := e.decayEntry(ops, live, now)
			if err != nil {
				return err
			}
			if !done {
				continue
			}

			state.Score = domain.ClampScore(state.Score + restore)
			observability.DecayRestores.Add(float64(restore))
			processed++
		}

		res = &Result{ScoreBefore: before, ScoreAfter: state.Score}
		res.BonusActivated = e.maybeActivateBonus(state, before, now)

		state.UpdatedAt = now
		return ops.UpdateCredibility(state)
	})
	if err != nil {
		return 0, err
	}
	e.PublishBonus(userID, res)
	return processed, nil
}

// decayEntry applies at most one decay stage to a downvote. Returns the
// score points to give back and whether anything happened.
func (e *Engine) decayEntry(ops *sqlite.Ops, ev *domain.CredibilityEvent, now time.Time) (int, bool, error) {
	age := now.Sub(ev.Timestamp)
	magnitude := -ev.Amount

	switch {
	case age >= FullDecayAfter:
		// Full reversal: whatever the 30-day stage has not yet returned.
		restore := magnitude
		if ev.Decayed {
			restore = magnitude - magnitude/2
		}
		if err := ops.ArchiveEvent(ev, now); err != nil {
			return 0, false, domain.Persistencef("archive event", err)
		}
		if err := ops.DeleteEvent(ev.ID); err != nil {
			return 0, false, domain.Persistencef("delete event", err)
		}
		if err := e.appendRestore(ops, ev, restore, now); err != nil {
			return 0, false, err
		}
		return restore, true, nil

	case age >= HalfDecayAfter && !ev.Decayed:
		restore := magnitude / 2
		if err := ops.MarkEventDecayed(ev.ID); err != nil {
			return 0, false, domain.Persistencef("mark decayed", err)
		}
		if err := e.appendRestore(ops, ev, restore, now); err != nil {
			return 0, false, err
		}
		return restore, true, nil

	default:
		// Already through the 30-day stage, not yet at 60 days.
		return 0, false, nil
	}
}

func (e *Engine) appendRestore(ops *sqlite.Ops, ev *domain.CredibilityEvent, restore int, now time.Time) error {
	_, err := ops.InsertEvent(&domain.CredibilityEvent{
		UserID:        ev.UserID,
		Kind:          domain.EventDecayRestore,
		Amount:        restore,
		Timestamp:     now,
		RelatedTaskID: ev.RelatedTaskID,
	}, 0)
	if err != nil {
		return domain.Persistencef("append event", err)
	}
	return nil
}

// ─── Redemption Bonus ───────────────────────────────────────────────────────

// maybeActivateBonus flags the 7-day redemption bonus on a dramatic
// recovery (below 60 → at least 95) within a single operation.
func (e *Engine) maybeActivateBonus(state *domain.CredibilityState, scoreBefore int, now time.Time) bool {
	if scoreBefore >= RecoveryFloor || state.Score < RecoveryTarget {
		return false
	}
	expiry := now.Add(RedemptionBonusDuration)
	state.HasRedemptionBonus = true
	state.RedemptionBonusExpiry = &expiry
	observability.RedemptionBonuses.Inc()
	return true
}

// PublishBonus announces a redemption bonus activation. Callers of the
// Tx variants invoke this after their transaction commits.
func (e *Engine) PublishBonus(userID string, res *Result) {
	if res == nil || !res.BonusActivated {
		return
	}
	e.sink.Publish(domain.Event{
		Type:      domain.EventRedemptionBonusActive,
		UserID:    userID,
		Score:     res.ScoreAfter,
		Timestamp: e.now(),
	})
}

// ─── Queries ────────────────────────────────────────────────────────────────

// EarningMultiplier returns the tier multiplier applied to task payouts
// for the user's current score.
func (e *Engine) EarningMultiplier(userID string) (float64, int, error) {
	state, err := e.state(userID)
	if err != nil {
		return 0, 0, err
	}
	return domain.TierFor(state.Score).Multiplier, state.Score, nil
}

// ConversionRate returns the XP→minutes multiplier: the tier rate times
// the 1.3 redemption bonus while it is active and unexpired.
func (e *Engine) ConversionRate(userID string) (float64, error) {
	state, err := e.state(userID)
	if err != nil {
		return 0, err
	}
	return ConversionRateFor(state, e.now()), nil
}

// ConversionRateFor computes the conversion rate for a state snapshot.
func ConversionRateFor(state *domain.CredibilityState, now time.Time) float64 {
	rate := domain.TierFor(state.Score).Multiplier
	if state.RedemptionBonusActive(now) {
		rate *= RedemptionBonusRate
	}
	return rate
}

// Status returns the immutable credibility snapshot for the UI layer. A
// bonus found expired is cleared (and announced) as a side effect.
func (e *Engine) Status(userID string) (*domain.CredibilityStatus, error) {
	now := e.now()
	state, err := e.state(userID)
	if err != nil {
		return nil, err
	}

	// Lazy expiry: the flag is only honored while unexpired, but clear it
	// on observation so the expiry callback fires exactly once.
	if state.HasRedemptionBonus && !state.RedemptionBonusActive(now) {
		if err := e.clearExpiredBonus(userID); err != nil {
			return nil, err
		}
		state.HasRedemptionBonus = false
		state.RedemptionBonusExpiry = nil
	}

	history, err := e.db.Ops().ListEvents(userID, 100)
	if err != nil {
		return nil, domain.Persistencef("list events", err)
	}

	return &domain.CredibilityStatus{
		UserID:          userID,
		Score:           state.Score,
		Tier:            domain.TierFor(state.Score),
		ConversionRate:  ConversionRateFor(state, now),
		Streak:          state.ConsecutiveApprovedTasks,
		RedemptionBonus: state.RedemptionBonusActive(now),
		BonusExpiry:     state.RedemptionBonusExpiry,
		History:         history,
	}, nil
}

// Streak returns the user's consecutive-approval counter.
func (e *Engine) Streak(userID string) (int, error) {
	state, err := e.state(userID)
	if err != nil {
		return 0, err
	}
	return state.ConsecutiveApprovedTasks, nil
}

func (e *Engine) state(userID string) (*domain.CredibilityState, error) {
	var state *domain.CredibilityState
	err := e.db.WithTx(func(ops *sqlite.Ops) error {
		var err error
		state, err = ops.EnsureCredibility(userID, e.now())
		if err != nil {
			return domain.Persistencef("load credibility", err)
		}
		return nil
	})
	return state, err
}

func (e *Engine) clearExpiredBonus(userID string) error {
	defer e.locks.Lock(userID)()

	var expired bool
	err := e.db.WithTx(func(ops *sqlite.Ops) error {
		state, err := ops.EnsureCredibility(userID, e.now())
		if err != nil {
			return domain.Persistencef("load credibility", err)
		}
		if !state.HasRedemptionBonus || state.RedemptionBonusActive(e.now()) {
			return nil
		}
		state.HasRedemptionBonus = false
		state.RedemptionBonusExpiry = nil
		state.UpdatedAt = e.now()
		expired = true
		return ops.UpdateCredibility(state)
	})
	if err != nil {
		return err
	}
	if expired {
		e.sink.Publish(domain.Event{
			Type:      domain.EventRedemptionBonusExpired,
			UserID:    userID,
			Timestamp: e.now(),
		})
	}
	return nil
}
