package signaling

import (
	"context"
	"net/http"
	"net/url"
)

// PlatformClient implements port.PlatformAPI. All requests are scoped under
// the call id, optionally below a phone number id.
type PlatformClient struct {
	c             *client
	phoneNumberID string
}

func NewPlatformClient(cfg Config, phoneNumberID string) *PlatformClient {
	return &PlatformClient{c: newClient(cfg), phoneNumberID: phoneNumberID}
}

type preAcceptRequest struct {
	SDP     string `json:"sdp"`
	SDPType string `json:"sdpType"`
}

func (p *PlatformClient) PreAccept(ctx context.Context, callID, sdpAnswer string) error {
	body := preAcceptRequest{SDP: sdpAnswer, SDPType: "answer"}
	return p.c.do(ctx, "pre_accept", http.MethodPost, p.callPath(callID, "pre_accept"), body, nil)
}

func (p *PlatformClient) Accept(ctx context.Context, callID string) error {
	return p.c.do(ctx, "accept", http.MethodPost, p.callPath(callID, "accept"), nil, nil)
}

func (p *PlatformClient) Terminate(ctx context.Context, callID string) error {
	return p.c.do(ctx, "terminate", http.MethodPost, p.callPath(callID, "terminate"), nil, nil)
}

func (p *PlatformClient) callPath(callID, action string) string {
	path := "/calls/" + url.PathEscape(callID) + "/" + action
	if p.phoneNumberID != "" {
		path = "/" + url.PathEscape(p.phoneNumberID) + path
	}
	return path
}
