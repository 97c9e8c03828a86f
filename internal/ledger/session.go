package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxInitialBalance is the simulator's seed-money ceiling.
var MaxInitialBalance = decimal.NewFromInt(100_000_000)

// SessionStatus is the lifecycle state of a challenge session.
//
//	READY --Start--> ACTIVE --End--> COMPLETED
//	READY --Cancel-----------------> CANCELLED
//	ACTIVE --Cancel----------------> CANCELLED
//
// ENDED is never produced by the methods here; it arrives only through
// loaded legacy data and counts as terminal.
type SessionStatus string

const (
	SessionReady     SessionStatus = "READY"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionEnded     SessionStatus = "ENDED"
)

// IsTerminal reports whether no further lifecycle transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionEnded
}

// CanStartNewSession reports whether a session in this status no longer
// blocks the user from opening a fresh session on the same challenge.
func (s SessionStatus) CanStartNewSession() bool {
	return s.IsTerminal()
}

// Session is one user's time-boxed run at a challenge. It owns the cash
// balance and the admission gate; aggregate P&L is recomputed on demand
// from caller-supplied portfolio valuations, never maintained
// incrementally.
type Session struct {
	ID             int64           `json:"id" db:"id"`
	ChallengeID    int64           `json:"challenge_id" db:"challenge_id"`
	UserID         int64           `json:"user_id" db:"user_id"`
	InitialBalance decimal.Decimal `json:"initial_balance" db:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	Status         SessionStatus   `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// NewSession returns a READY session seeded with the initial balance.
func NewSession(challengeID, userID int64, initialBalance decimal.Decimal) (*Session, error) {
	if challengeID <= 0 {
		return nil, fmt.Errorf("%w: challenge id must be positive", ErrValidation)
	}
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrValidation)
	}
	if initialBalance.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: initial balance must be positive", ErrValidation)
	}
	if initialBalance.GreaterThan(MaxInitialBalance) {
		return nil, fmt.Errorf("%w: initial balance exceeds ceiling of %s", ErrValidation, MaxInitialBalance)
	}
	return &Session{
		ChallengeID:    challengeID,
		UserID:         userID,
		InitialBalance: initialBalance,
		CurrentBalance: initialBalance,
		Status:         SessionReady,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Start activates a READY session for trading.
func (s *Session) Start() error {
	if s.Status != SessionReady {
		return fmt.Errorf("%w: only a ready session can be started", ErrState)
	}
	now := time.Now().UTC()
	s.Status = SessionActive
	s.StartedAt = &now
	return nil
}

// End completes an ACTIVE session normally.
func (s *Session) End() error {
	if s.Status != SessionActive {
		return fmt.Errorf("%w: only an active session can be ended", ErrState)
	}
	now := time.Now().UTC()
	s.Status = SessionCompleted
	s.CompletedAt = &now
	return nil
}

// Cancel aborts a READY or ACTIVE session.
func (s *Session) Cancel() error {
	if s.Status != SessionReady && s.Status != SessionActive {
		return fmt.Errorf("%w: only a ready or active session can be cancelled", ErrState)
	}
	now := time.Now().UTC()
	s.Status = SessionCancelled
	s.CompletedAt = &now
	return nil
}

// UpdateBalance overwrites the cash balance. Callers compute the new total
// themselves; there is no debit/credit arithmetic at this layer.
func (s *Session) UpdateBalance(newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return fmt.Errorf("%w: balance cannot be negative", ErrValidation)
	}
	s.CurrentBalance = newBalance
	return nil
}

// CanPlaceOrder reports whether an order of the given value is admissible:
// the session is ACTIVE and the value does not exceed the cash balance
// (boundary inclusive).
func (s *Session) CanPlaceOrder(orderValue decimal.Decimal) bool {
	return s.Status == SessionActive && orderValue.LessThanOrEqual(s.CurrentBalance)
}

// TotalPnL is portfolio value plus cash minus the seed balance.
func (s *Session) TotalPnL(portfolioValue decimal.Decimal) decimal.Decimal {
	return portfolioValue.Add(s.CurrentBalance).Sub(s.InitialBalance)
}

// ReturnPercentage is the session return in percent, 4 decimal places
// half-up. The zero-initial-balance guard is unreachable for sessions
// built through NewSession but must hold for loaded data.
func (s *Session) ReturnPercentage(portfolioValue decimal.Decimal) decimal.Decimal {
	if s.InitialBalance.IsZero() {
		return decimal.Zero
	}
	gain := portfolioValue.Add(s.CurrentBalance).Sub(s.InitialBalance)
	return gain.Mul(hundred).DivRound(s.InitialBalance, 4)
}
