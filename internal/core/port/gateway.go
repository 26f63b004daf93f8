package port

import (
	"context"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

type EventPublisher interface {
	PublishCallEvent(ctx context.Context, ev domain.CallEvent) error
}
