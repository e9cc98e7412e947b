package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

// SessionStore keeps sessions in process memory. A single mutex makes every
// operation atomic, including the per-user cancel-then-create.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
	byUser   map[domain.UserID][]domain.SessionID
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*domain.Session),
		byUser:   make(map[domain.UserID][]domain.SessionID),
	}
}

func (s *SessionStore) CreateSuperseding(_ context.Context, session *domain.Session, now time.Time) ([]domain.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return nil, fmt.Errorf("%w: session %s already exists", domain.ErrConflict, session.ID)
	}

	var cancelled []domain.SessionID
	for _, id := range s.byUser[session.UserID] {
		prev := s.sessions[id]
		if prev.Status != domain.StatusPending {
			continue
		}
		if err := prev.Cancel(domain.CancelSuperseded, now); err != nil {
			return nil, err
		}
		cancelled = append(cancelled, id)
	}

	s.sessions[session.ID] = session.Clone()
	s.byUser[session.UserID] = append(s.byUser[session.UserID], session.ID)
	return cancelled, nil
}

func (s *SessionStore) GetSession(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *SessionStore) UpdateSession(_ context.Context, id domain.SessionID, fn func(*domain.Session) error) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.sessions[id] = working
	return working.Clone(), nil
}

func (s *SessionStore) ListCompletedSessions(_ context.Context, userID domain.UserID, since time.Time, limit int) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Session
	for _, id := range s.byUser[userID] {
		sess := s.sessions[id]
		if sess.Status != domain.StatusCompleted || sess.CreatedAt.Before(since) {
			continue
		}
		out = append(out, sess.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PendingCount is used by tests and the CLI to check the one-pending rule.
func (s *SessionStore) PendingCount(userID domain.UserID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range s.byUser[userID] {
		if s.sessions[id].Status == domain.StatusPending {
			n++
		}
	}
	return n
}
