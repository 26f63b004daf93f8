package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// CallRegistry is the in-process port.CallRegistry. State is lost on restart.
type CallRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.CallSession
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		sessions: make(map[string]*domain.CallSession),
	}
}

func (r *CallRegistry) Create(ctx context.Context, callID string) (*domain.CallSession, error) {
	sess, err := domain.NewCallSession(callID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[callID]; ok {
		return nil, domain.ErrConflict
	}
	r.sessions[callID] = sess
	return sess.Clone(), nil
}

func (r *CallRegistry) Get(ctx context.Context, callID string) (*domain.CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[callID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

func (r *CallRegistry) Update(ctx context.Context, callID string, mutate func(*domain.CallSession) error) (*domain.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[callID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	// mutate works on a copy so a rejected change leaves no trace
	next := sess.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	r.sessions[callID] = next
	return next.Clone(), nil
}

func (r *CallRegistry) Remove(ctx context.Context, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

func (r *CallRegistry) Count(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot ordered by creation time.
func (r *CallRegistry) List(ctx context.Context) []*domain.CallSession {
	r.mu.RLock()
	out := make([]*domain.CallSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
