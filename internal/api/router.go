package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"webpay-service/internal/metrics"
	"webpay-service/internal/webpay"
)

func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/webpay", func(r chi.Router) {
		r.Post("/prepare", h.Prepare)
		r.Post("/inapp/prepare", h.PrepareInApp)
		r.Get("/status/{uuid}", h.Status)
	})
	r.Post(webpay.PostbackPath, h.Postback)
	r.Post(webpay.ChargebackPath, h.Chargeback)

	return r
}
