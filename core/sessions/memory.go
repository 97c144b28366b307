package sessions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultCapacity    = 1024
)

type MemoryStore struct {
	stageLimit  int
	idleTimeout time.Duration
	capacity    int
	onExpire    func(Session)
	now         func() time.Time

	// createMu only serializes session creation, mutations lock the entry.
	createMu sync.Mutex
	index    *expirable.LRU[string, *entry]
}

type entry struct {
	mu      sync.Mutex
	session Session
	removed atomic.Bool
}

type StoreOption func(*MemoryStore)

// WithStageLimit bounds the stage index, usually to the catalog size.
func WithStageLimit(limit int) StoreOption {
	return func(s *MemoryStore) { s.stageLimit = limit }
}

// WithIdleTimeout sets after how long without mutations a session expires.
func WithIdleTimeout(timeout time.Duration) StoreOption {
	return func(s *MemoryStore) { s.idleTimeout = timeout }
}

// WithCapacity bounds the number of live sessions. Creating a session beyond
// it fails with ErrCapacityReached. Zero means unbounded.
func WithCapacity(capacity int) StoreOption {
	return func(s *MemoryStore) { s.capacity = capacity }
}

// WithExpiryCallback registers a callback invoked with the last state of a
// session that expired. It is not invoked for Remove.
func WithExpiryCallback(callback func(Session)) StoreOption {
	return func(s *MemoryStore) { s.onExpire = callback }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		idleTimeout: DefaultIdleTimeout,
		capacity:    DefaultCapacity,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// The index itself is unbounded, capacity is enforced on creation.
	s.index = expirable.NewLRU[string, *entry](0, s.evicted, s.idleTimeout)
	return s
}

// evicted runs while the index holds its lock, so it must not call back into
// the index.
func (s *MemoryStore) evicted(id string, e *entry) {
	if e.removed.Swap(true) {
		return
	}

	logger.Info("session expired", "session_id", id)
	if s.onExpire != nil {
		e.mu.Lock()
		last := e.session.Clone()
		e.mu.Unlock()
		go s.onExpire(last)
	}
}

func (s *MemoryStore) GetOrCreate(id string) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("session id must not be empty")
	}

	if e, ok := s.lookup(id); ok {
		return e.snapshot(), nil
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if e, ok := s.lookup(id); ok {
		return e.snapshot(), nil
	}

	if s.capacity > 0 && s.index.Len() >= s.capacity {
		logger.Warn("session capacity reached", "session_id", id, "capacity", s.capacity)
		return Session{}, fmt.Errorf("session %q: %w", id, ErrCapacityReached)
	}

	now := s.now()
	e := &entry{session: Session{
		ID:         id,
		StageIndex: 0,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
	s.index.Add(id, e)
	logger.InfoContext(context.Background(), "session created", "session_id", id)

	return e.snapshot(), nil
}

func (s *MemoryStore) Get(id string) (Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	return e.snapshot(), nil
}

func (s *MemoryStore) AppendTurn(id string, role Role, text string) (Turn, error) {
	var turn Turn
	_, err := s.Update(id, func(session *Session) error {
		turn = Turn{Role: role, Text: text, Timestamp: s.now()}
		session.Turns = append(session.Turns, turn)
		return nil
	})
	if err != nil {
		return Turn{}, err
	}
	return turn, nil
}

func (s *MemoryStore) AdvanceStage(id string) (int, error) {
	session, err := s.Update(id, func(session *Session) error {
		if session.Status != StatusActive {
			return nil
		}
		if s.stageLimit > 0 && session.StageIndex >= s.stageLimit {
			return nil
		}
		session.StageIndex++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return session.StageIndex, nil
}

func (s *MemoryStore) MarkStatus(id string, status Status) error {
	_, err := s.Update(id, func(session *Session) error {
		session.Status = status
		return nil
	})
	return err
}

func (s *MemoryStore) SetAvatar(id string, handle *AvatarHandle) error {
	_, err := s.Update(id, func(session *Session) error {
		if handle == nil {
			session.Avatar = nil
			return nil
		}
		avatar := *handle
		session.Avatar = &avatar
		return nil
	})
	return err
}

func (s *MemoryStore) Update(id string, fn func(*Session) error) (Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}

	e.mu.Lock()
	if e.removed.Load() {
		e.mu.Unlock()
		return Session{}, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}

	working := e.session.Clone()
	if err := fn(&working); err != nil {
		e.mu.Unlock()
		return Session{}, err
	}
	if err := validateTransition(e.session, working, s.stageLimit); err != nil {
		e.mu.Unlock()
		logger.Error("rejected session mutation", "session_id", id, "error", err)
		return Session{}, err
	}
	working.UpdatedAt = s.now()
	e.session = working
	result := working.Clone()
	e.mu.Unlock()

	s.touch(id, e)
	return result, nil
}

func (s *MemoryStore) Remove(id string) {
	e, ok := s.index.Peek(id)
	if !ok {
		return
	}
	e.removed.Store(true)
	s.index.Remove(id)
}

func (s *MemoryStore) Len() int {
	return s.index.Len()
}

func (s *MemoryStore) lookup(id string) (*entry, bool) {
	e, ok := s.index.Get(id)
	if !ok || e.removed.Load() {
		return nil, false
	}
	return e, true
}

// touch re-adds the entry to refresh its expiry.
func (s *MemoryStore) touch(id string, e *entry) {
	if e.removed.Load() {
		return
	}
	s.index.Add(id, e)
}

func (e *entry) snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}
