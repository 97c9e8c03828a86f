package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stockquest/paper-engine/internal/ledger"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	nextSessionID int64
	nextPosID     int64
	sessions      map[int64]*ledger.Session
	orders        map[string]*ledger.Order
	orderLog      []string // insertion order of order IDs
	positions     map[int64]map[string]*ledger.Position
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[int64]*ledger.Session),
		orders:    make(map[string]*ledger.Order),
		positions: make(map[int64]map[string]*ledger.Position),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *ledger.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	sess.ID = s.nextSessionID

	// Store a copy to avoid external mutation.
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id int64) (*ledger.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, sess *ledger.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) ListSessionsByUser(_ context.Context, userID int64) ([]ledger.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListSessionsByUserAndChallenge(_ context.Context, userID, challengeID int64) ([]ledger.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.ChallengeID == challengeID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) InsertOrder(_ context.Context, o *ledger.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.orders[o.ID] = &cp
	s.orderLog = append(s.orderLog, o.ID)
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) ListOrdersBySession(_ context.Context, sessionID int64) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Order
	for _, id := range s.orderLog {
		if o := s.orders[id]; o.SessionID == sessionID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, sessionID int64, instrumentKey string) (*ledger.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[sessionID][instrumentKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *ledger.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byInstrument, ok := s.positions[p.SessionID]
	if !ok {
		byInstrument = make(map[string]*ledger.Position)
		s.positions[p.SessionID] = byInstrument
	}
	if existing, ok := byInstrument[p.InstrumentKey]; ok {
		p.ID = existing.ID
	} else {
		s.nextPosID++
		p.ID = s.nextPosID
	}
	cp := *p
	byInstrument[p.InstrumentKey] = &cp
	return nil
}

func (s *MemoryStore) ListPositionsBySession(_ context.Context, sessionID int64) ([]ledger.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Position
	for _, p := range s.positions[sessionID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
