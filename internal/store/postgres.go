package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockquest/paper-engine/internal/ledger"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *ledger.Session) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO sessions (challenge_id, user_id, initial_balance, current_balance, status, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8)
		 RETURNING id`,
		sess.ChallengeID, sess.UserID,
		sess.InitialBalance.String(), sess.CurrentBalance.String(),
		string(sess.Status), sess.CreatedAt, sess.StartedAt, sess.CompletedAt,
	).Scan(&sess.ID)
}

const sessionColumns = `id, challenge_id, user_id,
	        initial_balance::TEXT, current_balance::TEXT,
	        status, created_at, started_at, completed_at`

func (s *PostgresStore) GetSession(ctx context.Context, id int64) (*ledger.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *ledger.Session) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET current_balance = $2::NUMERIC, status = $3,
		     started_at = $4, completed_at = $5
		 WHERE id = $1`,
		sess.ID, sess.CurrentBalance.String(), string(sess.Status),
		sess.StartedAt, sess.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListSessionsByUser(ctx context.Context, userID int64) ([]ledger.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

func (s *PostgresStore) ListSessionsByUserAndChallenge(ctx context.Context, userID, challengeID int64) ([]ledger.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND challenge_id = $2 ORDER BY id DESC`,
		userID, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

func (s *PostgresStore) InsertOrder(ctx context.Context, o *ledger.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, session_id, instrument_key, side, quantity, order_type,
		                     limit_price, executed_price, slippage_rate, status, ordered_at, executed_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11, $12)`,
		o.ID, o.SessionID, o.InstrumentKey, string(o.Side),
		o.Quantity.String(), string(o.OrderType),
		decimalArg(o.LimitPrice), decimalArg(o.ExecutedPrice), decimalArg(o.SlippageRate),
		string(o.Status), o.OrderedAt, o.ExecutedAt,
	)
	return err
}

const orderColumns = `id, session_id, instrument_key, side,
	        quantity::TEXT, order_type,
	        limit_price::TEXT, executed_price::TEXT, slippage_rate::TEXT,
	        status, ordered_at, executed_at`

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*ledger.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) ListOrdersBySession(ctx context.Context, sessionID int64) ([]ledger.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE session_id = $1 ORDER BY ordered_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []ledger.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) GetPosition(ctx context.Context, sessionID int64, instrumentKey string) (*ledger.Position, error) {
	var p ledger.Position
	var qty, avg, cost string

	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, instrument_key,
		        quantity::TEXT, average_price::TEXT, total_cost::TEXT
		 FROM positions WHERE session_id = $1 AND instrument_key = $2`,
		sessionID, instrumentKey).
		Scan(&p.ID, &p.SessionID, &p.InstrumentKey, &qty, &avg, &cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get position %d/%s: %w", sessionID, instrumentKey, err)
	}

	if err := parsePosition(&p, qty, avg, cost); err != nil {
		return nil, fmt.Errorf("get position %d/%s: %w", sessionID, instrumentKey, err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *ledger.Position) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO positions (session_id, instrument_key, quantity, average_price, total_cost)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC)
		 ON CONFLICT (session_id, instrument_key) DO UPDATE
		 SET quantity = EXCLUDED.quantity,
		     average_price = EXCLUDED.average_price,
		     total_cost = EXCLUDED.total_cost
		 RETURNING id`,
		p.SessionID, p.InstrumentKey,
		p.Quantity.String(), p.AveragePrice.String(), p.TotalCost.String(),
	).Scan(&p.ID)
}

func (s *PostgresStore) ListPositionsBySession(ctx context.Context, sessionID int64) ([]ledger.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, instrument_key,
		        quantity::TEXT, average_price::TEXT, total_cost::TEXT
		 FROM positions WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []ledger.Position
	for rows.Next() {
		var p ledger.Position
		var qty, avg, cost string
		if err := rows.Scan(&p.ID, &p.SessionID, &p.InstrumentKey, &qty, &avg, &cost); err != nil {
			return nil, err
		}
		if err := parsePosition(&p, qty, avg, cost); err != nil {
			return nil, fmt.Errorf("list positions %d: %w", sessionID, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// --- Scan helpers ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSession(row pgxRow) (*ledger.Session, error) {
	var sess ledger.Session
	var initial, current, status string
	var startedAt, completedAt *time.Time

	if err := row.Scan(&sess.ID, &sess.ChallengeID, &sess.UserID,
		&initial, &current, &status,
		&sess.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	var err error
	if sess.InitialBalance, err = decimal.NewFromString(initial); err != nil {
		return nil, fmt.Errorf("initial_balance: %w", err)
	}
	if sess.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("current_balance: %w", err)
	}
	sess.Status = ledger.SessionStatus(status)
	sess.StartedAt = startedAt
	sess.CompletedAt = completedAt
	return &sess, nil
}

func scanSessions(rows pgxRows) ([]ledger.Session, error) {
	var sessions []ledger.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func scanOrder(row pgxRow) (*ledger.Order, error) {
	var o ledger.Order
	var side, orderType, status, qty string
	var limitPrice, executedPrice, slippageRate *string
	var executedAt *time.Time

	if err := row.Scan(&o.ID, &o.SessionID, &o.InstrumentKey, &side,
		&qty, &orderType,
		&limitPrice, &executedPrice, &slippageRate,
		&status, &o.OrderedAt, &executedAt); err != nil {
		return nil, err
	}

	o.Side = ledger.Side(side)
	o.OrderType = ledger.OrderType(orderType)
	o.Status = ledger.OrderStatus(status)
	var err error
	if o.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if o.LimitPrice, err = parseDecimal(limitPrice); err != nil {
		return nil, fmt.Errorf("limit_price: %w", err)
	}
	if o.ExecutedPrice, err = parseDecimal(executedPrice); err != nil {
		return nil, fmt.Errorf("executed_price: %w", err)
	}
	if o.SlippageRate, err = parseDecimal(slippageRate); err != nil {
		return nil, fmt.Errorf("slippage_rate: %w", err)
	}
	o.ExecutedAt = executedAt
	return &o, nil
}

// decimalArg converts an optional decimal into a nullable SQL argument.
func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// parseDecimal parses an optional NUMERIC column scanned as text.
func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parsePosition(p *ledger.Position, qty, avg, cost string) error {
	var err error
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	if p.AveragePrice, err = decimal.NewFromString(avg); err != nil {
		return fmt.Errorf("average_price: %w", err)
	}
	if p.TotalCost, err = decimal.NewFromString(cost); err != nil {
		return fmt.Errorf("total_cost: %w", err)
	}
	return nil
}
