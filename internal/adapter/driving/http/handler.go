package http

import (
	"encoding/json"
	"net/http"

	"github.com/Wyydra/callbridge/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callbridge/internal/config"
	"github.com/Wyydra/callbridge/internal/core/service"
	"github.com/Wyydra/callbridge/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	CallService *service.CallService
	Hub         *ws.Hub
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Webhook     config.WebhookConfig
}

func NewHandler(callService *service.CallService, hub *ws.Hub, m *metrics.Metrics, gatherer prometheus.Gatherer, webhook config.WebhookConfig) *Handler {
	return &Handler{
		CallService: callService,
		Hub:         hub,
		Metrics:     m,
		Gatherer:    gatherer,
		Webhook:     webhook,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.ServeHealth)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/webhook", h.ServeVerify)
	r.Post("/webhook", h.ServeWebhook)

	r.Route("/calls", func(r chi.Router) {
		r.Post("/connect", h.ServeConnect)
		r.Post("/terminate", h.ServeTerminate)
		r.Get("/{callID}", h.ServeCall)
	})

	if h.Hub != nil {
		r.Get("/ws/events", h.ServeEvents)
	}

	return r
}

func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"activeCalls": h.CallService.ActiveCalls(r.Context()),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"code": code, "error": message})
}
