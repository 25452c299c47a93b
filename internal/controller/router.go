package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unclebandit/mailcampaign-sender/internal/handler"
	"github.com/unclebandit/mailcampaign-sender/internal/metrics"
)

// NewRouter wires the campaign endpoints, health check and metrics.
func NewRouter(ctrl *CampaignController, h *handler.CampaignHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Observability)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/send", ctrl.SendCampaign)
		r.Post("/{id}/send", ctrl.SendCampaignByID)
		r.Post("/{id}/retry", ctrl.RetryFailed)
		r.Post("/{id}/pause", ctrl.Pause)
		r.Post("/{id}/resume", ctrl.Resume)
		r.Post("/{id}/cancel", ctrl.Cancel)
		r.Get("/{id}/status", h.GetCampaignStatusHandler)
	})

	return r
}
