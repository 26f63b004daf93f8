package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/pion/sdp/v3"
)

const (
	eventConnect   = "connect"
	eventTerminate = "terminate"
)

type connectRequest struct {
	CallID   string `json:"callId"`
	SDPOffer string `json:"sdpOffer"`
}

type terminateRequest struct {
	CallID string `json:"callId"`
}

type sessionDTO struct {
	CallID        string    `json:"callId"`
	EdgeSessionID string    `json:"edgeSessionId,omitempty"`
	State         string    `json:"state"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newSessionDTO(s *domain.CallSession) sessionDTO {
	return sessionDTO{
		CallID:        s.CallID,
		EdgeSessionID: s.EdgeSessionID,
		State:         s.State.String(),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (h *Handler) ServeConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_event", "invalid request body")
		return
	}

	sess, err := h.connect(r, req.CallID, req.SDPOffer)
	if err != nil {
		status, code := outcome(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, newSessionDTO(sess))
}

func (h *Handler) ServeTerminate(w http.ResponseWriter, r *http.Request) {
	var req terminateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_event", "invalid request body")
		return
	}

	if err := h.terminate(r, req.CallID); err != nil {
		status, code := outcome(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "terminated"})
}

func (h *Handler) ServeCall(w http.ResponseWriter, r *http.Request) {
	sess, err := h.CallService.Session(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, newSessionDTO(sess))
}

func (h *Handler) connect(r *http.Request, callID, offer string) (*domain.CallSession, error) {
	var sess *domain.CallSession
	err := h.validateOffer(offer)
	if err == nil {
		sess, err = h.CallService.Connect(r.Context(), callID, offer)
	}
	_, code := outcome(err)
	h.Metrics.ObserveWebhookEvent(eventConnect, code)
	return sess, err
}

func (h *Handler) terminate(r *http.Request, callID string) error {
	err := h.CallService.Terminate(r.Context(), callID)
	_, code := outcome(err)
	h.Metrics.ObserveWebhookEvent(eventTerminate, code)
	return err
}

// validateOffer only parses the offer in strict mode; otherwise it stays
// opaque and the edge judges it.
func (h *Handler) validateOffer(offer string) error {
	if !h.Webhook.StrictSDP || offer == "" {
		return nil
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(offer)); err != nil {
		return errors.Join(domain.ErrMalformedEvent, err)
	}
	return nil
}

// outcome maps a flow result to a status code and a stable error code.
func outcome(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, "ok"
	case errors.Is(err, domain.ErrMalformedEvent):
		return http.StatusBadRequest, "malformed_event"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrSessionGone):
		return http.StatusConflict, "session_gone"
	case errors.Is(err, domain.ErrNegotiationFailed):
		return http.StatusBadGateway, "negotiation_failed"
	case errors.Is(err, domain.ErrAcceptanceFailed):
		return http.StatusBadGateway, "acceptance_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
