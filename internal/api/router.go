package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"nexosql-backend/internal/config"
	"nexosql-backend/internal/handlers"
	"nexosql-backend/internal/logging"
	"nexosql-backend/pkg/httputil"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	UserHandler         *handlers.UserHandler
	ConnectionHandler   *handlers.ConnectionHandler
	ChatHandler         *handlers.ChatHandler
	SubscriptionHandler *handlers.SubscriptionHandler
	SupportHandler      *handlers.SupportHandler
	AdminHandler        *handlers.AdminHandler
	Config              *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()
	log := logging.Component("Router")

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	// process-query waits on the AI service, so the budget follows its timeout.
	r.Use(middleware.Timeout(deps.Config.AIServiceTimeout + 15*time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if deps.UserHandler == nil {
			panic("UserHandler dependency is nil in router setup")
		}
		r.Post("/users", deps.UserHandler.HandleRegister)
		r.Post("/auth/login", deps.UserHandler.HandleLogin)
		r.Post("/auth/refresh", deps.UserHandler.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

			r.Get("/users/profile", deps.UserHandler.HandleGetProfile)
			r.Put("/users/profile", deps.UserHandler.HandleUpdateProfile)
			r.Delete("/users", deps.UserHandler.HandleDeleteAccount)

			if h := deps.ConnectionHandler; h != nil {
				r.Route("/conexiones", func(r chi.Router) {
					r.Get("/", h.HandleList)
					r.Post("/", h.HandleCreate)
					r.Post("/test", h.HandleTestDraft)
					r.Get("/{id}", h.HandleGet)
					r.Put("/{id}", h.HandleUpdate)
					r.Delete("/{id}", h.HandleDelete)
					r.Post("/{id}/test", h.HandleTest)
				})
			} else {
				log.Warn("ConnectionHandler dependency is nil, skipping /api/conexiones routes.")
			}

			if h := deps.ChatHandler; h != nil {
				r.Route("/chats", func(r chi.Router) {
					r.Get("/", h.HandleList)
					r.Post("/", h.HandleCreate)
					r.Get("/{id}", h.HandleGet)
					r.Put("/{id}", h.HandleRename)
					r.Delete("/{id}", h.HandleDelete)
					r.Post("/{id}/messages", h.HandleAddMessage)
				})
				r.Post("/ai/process-query", h.HandleProcessQuery)
				r.Post("/ai/cancel/{threadId}", h.HandleCancelQuery)
			} else {
				log.Warn("ChatHandler dependency is nil, skipping /api/chats and /api/ai routes.")
			}

			if h := deps.SubscriptionHandler; h != nil {
				r.Route("/subscriptions", func(r chi.Router) {
					r.Get("/plans", h.HandlePlans)
					r.Get("/current", h.HandleCurrent)
					r.Get("/stats", h.HandleStats)
					r.Post("/create", h.HandleCreate)
					r.Post("/confirm/{id}", h.HandleConfirm)
					r.Post("/cancel", h.HandleCancel)
					r.Post("/update", h.HandleUpdate)
					r.Post("/sync/{id}", h.HandleSync)
				})
			} else {
				log.Warn("SubscriptionHandler dependency is nil, skipping /api/subscriptions routes.")
			}

			if h := deps.SupportHandler; h != nil {
				r.Route("/support", func(r chi.Router) {
					r.Post("/", h.HandleCreate)
					r.Get("/", h.HandleList)
					r.Put("/{id}/status", h.HandleUpdateStatus)
				})
			}

			if h := deps.AdminHandler; h != nil {
				r.With(AdminOnly).Get("/admin/dashboard", h.HandleDashboard)
			}
		})
	})

	return r
}
