package signaling

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// EdgeClient implements port.EdgeAPI.
type EdgeClient struct {
	c *client
}

func NewEdgeClient(cfg Config) *EdgeClient {
	return &EdgeClient{c: newClient(cfg)}
}

type negotiateRequest struct {
	CallID   string `json:"callId"`
	SDPOffer string `json:"sdpOffer"`
}

type negotiateResponse struct {
	EdgeSessionID string `json:"edgeSessionId"`
	SDPAnswer     string `json:"sdpAnswer"`
}

type hangupRequest struct {
	EdgeSessionID string `json:"edgeSessionId"`
}

// Negotiate hands the offer to the edge. Both response fields are mandatory;
// when one is missing the partial result is returned with the error so the
// caller can release an edge session it never got an answer for.
func (e *EdgeClient) Negotiate(ctx context.Context, callID, sdpOffer string) (domain.Negotiation, error) {
	var resp negotiateResponse
	if err := e.c.do(ctx, "negotiate", http.MethodPost, "/negotiate", negotiateRequest{CallID: callID, SDPOffer: sdpOffer}, &resp); err != nil {
		return domain.Negotiation{}, err
	}

	neg := domain.Negotiation{EdgeSessionID: resp.EdgeSessionID, SDPAnswer: resp.SDPAnswer}
	switch {
	case resp.EdgeSessionID == "":
		return neg, fmt.Errorf("%w: %w: missing edgeSessionId", ErrProtocol, domain.ErrIncompleteNegotiation)
	case resp.SDPAnswer == "":
		return neg, fmt.Errorf("%w: %w: missing sdpAnswer", ErrProtocol, domain.ErrIncompleteNegotiation)
	}
	return neg, nil
}

func (e *EdgeClient) Hangup(ctx context.Context, edgeSessionID string) error {
	return e.c.do(ctx, "hangup", http.MethodPost, "/hangup", hangupRequest{EdgeSessionID: edgeSessionID}, nil)
}
