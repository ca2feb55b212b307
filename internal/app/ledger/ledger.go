// Package ledger owns each user's XP balance and transaction history.
// Pure arithmetic — it knows nothing about tasks or credibility beyond
// the multiplier and score snapshot handed to Earn.
//
// Soft cap: above a balance of 1000, earning yields only 50%. A credit
// that crosses the cap pays the below-cap portion in full and the rest at
// half, rounded down.
package ledger

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/chorequest/chorequest/internal/app/userlock"
	"github.com/chorequest/chorequest/internal/domain"
	"github.com/chorequest/chorequest/internal/infra/observability"
	"github.com/chorequest/chorequest/internal/infra/sqlite"
)

const (
	// MinEarn is the floor on any task payout — a task always yields at
	// least 1 XP regardless of how low the multiplier is.
	MinEarn = 1

	// MaxGrant bounds a single out-of-band grant.
	MaxGrant = 500
)

// Service is the XP ledger. All mutations serialize per user through the
// shared lock registry and commit through single transactions.
type Service struct {
	db    *sqlite.DB
	locks *userlock.Registry

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a ledger service.
func New(db *sqlite.DB, locks *userlock.Registry) *Service {
	return &Service{db: db, locks: locks, now: time.Now}
}

// SetClock overrides the time source (tests only).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ─── Earn ───────────────────────────────────────────────────────────────────

// Earn credits a task payout: ceil(baseXP × multiplier), floored at 1,
// then passed through the soft cap. Returns the credited amount.
// baseXP ≤ 0 is a no-op.
func (s *Service) Earn(userID string, baseXP int, multiplier float64, taskID string, credibilityAt *int) (int, error) {
	if baseXP <= 0 {
		return 0, nil
	}

	defer s.locks.Lock(userID)()

	var credited int
	err := s.db.WithTx(func(ops *sqlite.Ops) error {
		var err error
		credited, err = s.EarnTx(ops, userID, baseXP, multiplier, taskID, credibilityAt)
		return err
	})
	if err != nil {
		return 0, err
	}
	return credited, nil
}

// EarnTx is the transactional core of Earn, for callers composing a
// larger atomic unit (a review decision). The caller must hold the user's
// lock and supply an open transaction.
func (s *Service) EarnTx(ops *sqlite.Ops, userID string, baseXP int, multiplier float64, taskID string, credibilityAt *int) (int, error) {
	if baseXP <= 0 {
		return 0, nil
	}

	now := s.now()
	bal, err := ops.EnsureBalance(userID, now)
	if err != nil {
		return 0, domain.Persistencef("load balance", err)
	}

	raw := int(math.Ceil(float64(baseXP) * multiplier))
	if raw < MinEarn {
		raw = MinEarn
	}
	credited := softCapCredit(bal.CurrentXP, raw)

	bal.CurrentXP += credited
	bal.LifetimeEarned += credited
	bal.LastUpdated = now
	if err := ops.UpdateBalance(bal); err != nil {
		return 0, domain.Persistencef("update balance", err)
	}

	tx := &domain.XPTransaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              domain.TxEarned,
		Amount:            credited,
		Timestamp:         now,
		RelatedTaskID:     taskID,
		CredibilityAtTime: credibilityAt,
	}
	if err := ops.InsertTransaction(tx); err != nil {
		return 0, domain.Persistencef("append transaction", err)
	}

	observability.XPEarned.Add(float64(credited))
	return credited, nil
}

// softCapCredit applies diminishing returns above the soft cap.
func softCapCredit(current, raw int) int {
	switch {
	case current >= domain.SoftCapXP:
		// Entirely above the cap: half credit, integer division.
		credited := raw / 2
		if credited < MinEarn {
			credited = MinEarn
		}
		return credited
	case current+raw > domain.SoftCapXP:
		// Crossing the cap: below-cap portion in full, remainder at half.
		below := domain.SoftCapXP - current
		return below + (raw-below)/2
	default:
		return raw
	}
}

// ─── Redeem ─────────────────────────────────────────────────────────────────

// Redeem spends XP for screen time (1 XP = 1 minute at the ledger level).
// Fails with no mutation unless amount > 0 and the balance covers it.
func (s *Service) Redeem(userID string, amount int, notes string) error {
	if amount <= 0 {
		observability.RedeemRejected.Inc()
		return domain.Validationf("redeem amount must be positive, got %d", amount)
	}

	defer s.locks.Lock(userID)()

	return s.db.WithTx(func(ops *sqlite.Ops) error {
		now := s.now()
		bal, err := ops.EnsureBalance(userID, now)
		if err != nil {
			return domain.Persistencef("load balance", err)
		}
		if bal.CurrentXP < amount {
			observability.RedeemRejected.Inc()
			return domain.Validationf("insufficient balance: have %d, want %d", bal.CurrentXP, amount)
		}

		bal.CurrentXP -= amount
		bal.LifetimeSpent += amount
		bal.LastUpdated = now
		if err := ops.UpdateBalance(bal); err != nil {
			return domain.Persistencef("update balance", err)
		}

		tx := &domain.XPTransaction{
			ID:        uuid.NewString(),
			UserID:    userID,
			Type:      domain.TxRedeemed,
			Amount:    amount,
			Timestamp: now,
			Notes:     notes,
		}
		if err := ops.InsertTransaction(tx); err != nil {
			return domain.Persistencef("append transaction", err)
		}

		observability.XPRedeemed.Add(float64(amount))
		return nil
	})
}

// ─── Grant ──────────────────────────────────────────────────────────────────

// Grant credits XP out of band, bypassing the soft cap entirely. Used for
// manual top-ups and badge bonuses. Requires 1 ≤ amount ≤ 500 and a
// non-empty reason.
func (s *Service) Grant(userID string, amount int, reason string) error {
	defer s.locks.Lock(userID)()

	return s.db.WithTx(func(ops *sqlite.Ops) error {
		return s.GrantTx(ops, userID, amount, reason)
	})
}

// GrantTx is the transactional core of Grant. The caller must hold the
// user's lock and supply an open transaction.
func (s *Service) GrantTx(ops *sqlite.Ops, userID string, amount int, reason string) error {
	if amount < 1 || amount > MaxGrant {
		return domain.Validationf("grant amount must be in [1, %d], got %d", MaxGrant, amount)
	}
	if reason == "" {
		return domain.Validationf("grant reason must not be empty")
	}

	now := s.now()
	bal, err := ops.EnsureBalance(userID, now)
	if err != nil {
		return domain.Persistencef("load balance", err)
	}

	bal.CurrentXP += amount
	bal.LifetimeEarned += amount
	bal.LastUpdated = now
	if err := ops.UpdateBalance(bal); err != nil {
		return domain.Persistencef("update balance", err)
	}

	tx := &domain.XPTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      domain.TxGranted,
		Amount:    amount,
		Timestamp: now,
		Notes:     reason,
	}
	if err := ops.InsertTransaction(tx); err != nil {
		return domain.Persistencef("append transaction", err)
	}

	observability.XPGranted.Add(float64(amount))
	return nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Balance returns the user's balance snapshot, creating the zero row on
// first reference.
func (s *Service) Balance(userID string) (*domain.XPBalance, error) {
	var bal *domain.XPBalance
	err := s.db.WithTx(func(ops *sqlite.Ops) error {
		var err error
		bal, err = ops.EnsureBalance(userID, s.now())
		if err != nil {
			return domain.Persistencef("load balance", err)
		}
		return nil
	})
	return bal, err
}

// Transactions returns the user's transaction history, newest first.
func (s *Service) Transactions(userID string, limit int) ([]domain.XPTransaction, error) {
	txs, err := s.db.Ops().ListTransactions(userID, limit)
	if err != nil {
		return nil, domain.Persistencef("list transactions", err)
	}
	return txs, nil
}
