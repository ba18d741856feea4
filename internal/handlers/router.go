package handlers

import (
	"net/http"

	"truth-dare-backend/internal/metrics"
	"truth-dare-backend/internal/middleware"
	"truth-dare-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps holds everything the HTTP surface needs
type RouterDeps struct {
	UserService    *services.UserService
	Coordinator    *services.TurnCoordinator
	Hub            *services.WSHub
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// NewRouter builds the HTTP router
func NewRouter(deps RouterDeps) http.Handler {
	userHandler := NewUserHandler(deps.UserService)
	queueHandler := NewQueueHandler(deps.Coordinator, deps.Hub)
	sessionHandler := NewSessionHandler(deps.Coordinator, deps.Hub)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.UserService, deps.Coordinator, deps.Metrics, deps.AllowedOrigins)

	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"waiting_users":   deps.Coordinator.QueueSize(),
			"active_sessions": deps.Coordinator.ActiveSessions(),
		})
	})
	r.Handle("/metrics", deps.Metrics.Handler())

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.UserService))
			r.Put("/users/push-token", userHandler.UpdatePushToken)
			r.Post("/queue/join", queueHandler.JoinQueue)
			r.Post("/queue/leave", queueHandler.LeaveQueue)
			r.Get("/sessions/{session_id}", sessionHandler.GetSession)
			r.Post("/sessions/{session_id}/end", sessionHandler.EndSession)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}
