package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockquest/paper-engine/internal/ledger"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot reads: session lookups and per-session position sets.
// Writes go to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateSession(ctx context.Context, sess *ledger.Session) error {
	if err := s.primary.CreateSession(ctx, sess); err != nil {
		return err
	}
	s.cacheSession(ctx, sess)
	return nil
}

func (s *CachedStore) UpdateSession(ctx context.Context, sess *ledger.Session) error {
	if err := s.primary.UpdateSession(ctx, sess); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, sessionKey(sess.ID))
	return nil
}

func (s *CachedStore) InsertOrder(ctx context.Context, o *ledger.Order) error {
	return s.primary.InsertOrder(ctx, o)
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *ledger.Position) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.SessionID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSession(ctx context.Context, id int64) (*ledger.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == nil {
		var sess ledger.Session
		if json.Unmarshal(data, &sess) == nil {
			return &sess, nil
		}
	}

	sess, err := s.primary.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheSession(ctx, sess)
	return sess, nil
}

func (s *CachedStore) ListPositionsBySession(ctx context.Context, sessionID int64) ([]ledger.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(sessionID)).Bytes()
	if err == nil {
		var positions []ledger.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(sessionID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSessionsByUser(ctx context.Context, userID int64) ([]ledger.Session, error) {
	return s.primary.ListSessionsByUser(ctx, userID)
}

func (s *CachedStore) ListSessionsByUserAndChallenge(ctx context.Context, userID, challengeID int64) ([]ledger.Session, error) {
	return s.primary.ListSessionsByUserAndChallenge(ctx, userID, challengeID)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*ledger.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) ListOrdersBySession(ctx context.Context, sessionID int64) ([]ledger.Order, error) {
	return s.primary.ListOrdersBySession(ctx, sessionID)
}

func (s *CachedStore) GetPosition(ctx context.Context, sessionID int64, instrumentKey string) (*ledger.Position, error) {
	return s.primary.GetPosition(ctx, sessionID, instrumentKey)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSession(ctx context.Context, sess *ledger.Session) {
	if data, err := json.Marshal(sess); err == nil {
		s.rdb.Set(ctx, sessionKey(sess.ID), data, s.ttl)
	}
}

func sessionKey(id int64) string          { return fmt.Sprintf("session:%d", id) }
func positionsKey(sessionID int64) string { return fmt.Sprintf("positions:%d", sessionID) }
