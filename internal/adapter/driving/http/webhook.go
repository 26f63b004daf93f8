package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/rs/zerolog/log"
)

const (
	maxWebhookBody  = 1 << 20
	signatureHeader = "X-Hub-Signature-256"
	sdpTypeOffer    = "offer"
)

type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Calls []webhookCall `json:"calls"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookCall struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Session *struct {
		SDPType string `json:"sdp_type"`
		SDP     string `json:"sdp"`
	} `json:"session"`
}

// ServeVerify answers the platform's subscription handshake.
func (h *Handler) ServeVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("hub.verify_token")

	if q.Get("hub.mode") != "subscribe" || h.Webhook.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.Webhook.VerifyToken)) != 1 {
		log.Warn().Str("mode", q.Get("hub.mode")).Msg("Webhook verification rejected")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// ServeWebhook dispatches every call entry of the envelope. All entries are
// processed; the first failure decides the response status.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "body exceeds limit")
			return
		}
		respondError(w, http.StatusBadRequest, "malformed_event", "unreadable body")
		return
	}

	if h.Webhook.AppSecret != "" && !validSignature(h.Webhook.AppSecret, body, r.Header.Get(signatureHeader)) {
		log.Warn().Msg("Webhook signature mismatch")
		respondError(w, http.StatusUnauthorized, "invalid_signature", "signature mismatch")
		return
	}

	var env webhookEnvelope
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_event", "invalid request body")
		return
	}

	var firstErr error
	handled := 0
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "calls" {
				continue
			}
			for _, call := range change.Value.Calls {
				ok, err := h.dispatch(r, call)
				if !ok {
					continue
				}
				handled++
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	if firstErr != nil {
		status, code := outcome(firstErr)
		respondError(w, status, code, firstErr.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"handled": handled})
}

// dispatch reports false for events the coordinator does not handle.
func (h *Handler) dispatch(r *http.Request, call webhookCall) (bool, error) {
	l := log.With().Str("call_id", call.ID).Str("event", call.Event).Logger()

	switch call.Event {
	case eventConnect:
		var err error
		if call.Session != nil && call.Session.SDPType != sdpTypeOffer {
			err = fmt.Errorf("%w: sdp_type %q is not an offer", domain.ErrMalformedEvent, call.Session.SDPType)
			_, code := outcome(err)
			h.Metrics.ObserveWebhookEvent(eventConnect, code)
		} else {
			offer := ""
			if call.Session != nil {
				offer = call.Session.SDP
			}
			_, err = h.connect(r, call.ID, offer)
		}
		if err != nil {
			l.Warn().Err(err).Msg("Connect event failed")
		}
		return true, err
	case eventTerminate:
		err := h.terminate(r, call.ID)
		if err != nil {
			l.Warn().Err(err).Msg("Terminate event failed")
		}
		return true, err
	default:
		l.Debug().Msg("Ignoring call event")
		return false, nil
	}
}

func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
