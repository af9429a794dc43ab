package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/staykit/pms/internal/config"
	"github.com/staykit/pms/internal/handler"
	mw "github.com/staykit/pms/internal/middleware"
	"github.com/staykit/pms/internal/ws"
	"go.uber.org/zap"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Directory  handler.AuthDirectory
	Workspaces handler.Workspaces
	Orders     handler.OrderTracker
	Hub        *ws.Hub
	Limiter    *mw.RateLimiter
	Logger     *zap.Logger
}

// New creates a Chi router with all application routes wired up.
// Console routes are scoped by X-Client-ID; staff order routes require a
// bearer token.
func New(cfg *config.Config, d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.ClientIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	var limit func(http.Handler) http.Handler
	if d.Limiter != nil {
		limit = d.Limiter.Middleware
	}
	authHandler := handler.NewAuthHandler(d.Directory, cfg.JWTSecret, limit, logger.Named("auth"))
	authHandler.RegisterRoutes(r)

	// Guest tracking and WebSocket feeds (staff feed authenticates via ?token=)
	orderHandler := handler.NewOrderHandler(d.Orders, d.Hub, cfg.JWTSecret, logger.Named("orders"))
	orderHandler.RegisterPublicRoutes(r)

	// Console stores, one workspace per client
	consoleHandler := handler.NewConsoleHandler(d.Workspaces, d.Orders, logger.Named("console"))
	r.Route("/console", func(r chi.Router) {
		r.Use(mw.RequireClientID)
		consoleHandler.RegisterRoutes(r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		orderHandler.RegisterStaffRoutes(r)
	})

	logger.Info("router initialized")
	return r
}
