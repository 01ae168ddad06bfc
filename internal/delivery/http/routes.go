package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

func NewRouter(h *HTTPHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/consultations", h.RequestConsultation)
		r.Get("/consultations/queue/{requestId}", h.GetQueueStatus)
		r.Delete("/consultations/queue/{requestId}", h.CancelQueueEntry)

		r.Get("/sessions/{sessionId}", h.GetSession)
		r.Post("/sessions/{sessionId}/end", h.EndSession)
		r.Post("/rooms/validate", h.ValidateRoomToken)

		r.Put("/consultants/{consultantId}", h.UpsertConsultant)
		r.Put("/consultants/{consultantId}/presence", h.SetPresence)
		r.Get("/consultants/{consultantId}/availability", h.GetAvailability)
		r.Get("/consultants/{consultantId}/stats", h.GetConsultantStats)

		r.Route("/clients/{clientId}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Post("/credits", h.AddCredits)
			r.Post("/transfers", h.TransferCredits)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/sessions", h.ListClientSessions)
			r.Get("/stats", h.GetClientStats)
			r.Get("/stream", h.StreamClientUpdates)
		})
	})

	return r
}
