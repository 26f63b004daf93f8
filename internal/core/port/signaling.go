package port

import (
	"context"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// EdgeAPI is the media termination service. It owns SDP, ICE and media.
type EdgeAPI interface {
	Negotiate(ctx context.Context, callID, sdpOffer string) (domain.Negotiation, error)
	Hangup(ctx context.Context, edgeSessionID string) error
}

// PlatformAPI is the calling platform that sent the webhook.
type PlatformAPI interface {
	PreAccept(ctx context.Context, callID, sdpAnswer string) error
	Accept(ctx context.Context, callID string) error
	Terminate(ctx context.Context, callID string) error
}
