// Package store defines the persistence interface for the paper-trading
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/stockquest/paper-engine/internal/ledger"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Session operations ---

	// CreateSession persists a new session and assigns its ID.
	CreateSession(ctx context.Context, s *ledger.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id int64) (*ledger.Session, error)

	// UpdateSession writes back a session's mutable state (status,
	// balance, timestamps).
	UpdateSession(ctx context.Context, s *ledger.Session) error

	// ListSessionsByUser returns all sessions of one user, newest first.
	ListSessionsByUser(ctx context.Context, userID int64) ([]ledger.Session, error)

	// ListSessionsByUserAndChallenge returns one user's sessions on one
	// challenge; used for the new-session admission gate.
	ListSessionsByUserAndChallenge(ctx context.Context, userID, challengeID int64) ([]ledger.Session, error)

	// --- Order operations ---

	// InsertOrder appends an order record. Orders are written once, in
	// their final state; the ledger forbids mutating terminal orders.
	InsertOrder(ctx context.Context, o *ledger.Order) error

	// GetOrder retrieves an order by ID.
	GetOrder(ctx context.Context, id string) (*ledger.Order, error)

	// ListOrdersBySession returns a session's order history, oldest first.
	ListOrdersBySession(ctx context.Context, sessionID int64) ([]ledger.Order, error)

	// --- Position operations ---

	// GetPosition retrieves the position for one session+instrument.
	GetPosition(ctx context.Context, sessionID int64, instrumentKey string) (*ledger.Position, error)

	// UpsertPosition creates or overwrites a position row.
	UpsertPosition(ctx context.Context, p *ledger.Position) error

	// ListPositionsBySession returns all positions of a session.
	ListPositionsBySession(ctx context.Context, sessionID int64) ([]ledger.Position, error)
}
