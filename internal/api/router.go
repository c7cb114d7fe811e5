package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gwi.com/streak-chat/internal/metrics"
)

func NewRouter(apiHandler *APIHandler, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(CORS)

	r.Handle("/metrics", metrics.Handler())

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.With(limiter.Handler).Post("/chat", apiHandler.ChatHandler)

			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Delete("/conversations/{conversationID}", apiHandler.DeleteConversationHandler)

			r.Get("/profile", apiHandler.ProfileHandler)
			r.Get("/rewards", apiHandler.RewardsHandler)

			r.Get("/style-packs", apiHandler.ListStylePacksHandler)
			r.Get("/style-packs/purchased", apiHandler.PurchasedStylePacksHandler)
			r.Post("/style-packs/{stylePackID}/purchase", apiHandler.PurchaseStylePackHandler)
		})
	})

	return r
}
