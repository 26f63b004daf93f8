package port

import (
	"context"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// CallRegistry maps platform call ids to local session state. Each method is
// atomic with respect to the others. Returned sessions are copies.
type CallRegistry interface {
	// Create fails with domain.ErrConflict when callID is already tracked.
	Create(ctx context.Context, callID string) (*domain.CallSession, error)
	Get(ctx context.Context, callID string) (*domain.CallSession, bool)
	// Update runs mutate on the stored session and keeps the result only when
	// mutate returns nil. Fails with domain.ErrNotFound when the session is gone.
	Update(ctx context.Context, callID string, mutate func(*domain.CallSession) error) (*domain.CallSession, error)
	// Remove is idempotent.
	Remove(ctx context.Context, callID string)
	Count(ctx context.Context) int
	List(ctx context.Context) []*domain.CallSession
}
