package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/config"
	"github.com/shohag/orderpipe/internal/storage"
)

type Server struct {
	cfg    config.ServerConfig
	store  storage.Storage
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, log zerolog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		log:   log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	orderHandler := NewOrderHandler(s.store)
	ntfHandler := NewNotificationHandler(s.store)
	catalogHandler := NewCatalogHandler(s.store)
	statsHandler := NewStatsHandler(s.store)

	// Health check — no auth
	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(APIKeyMiddleware(s.cfg.APIKey))
		}

		// Orders
		r.Post("/orders", orderHandler.Create)
		r.Get("/orders", orderHandler.List)
		r.Get("/orders/{id}", orderHandler.Get)
		r.Get("/orders/{id}/events", orderHandler.Events)
		r.Post("/orders/{id}/retry", orderHandler.Retry)
		r.Post("/orders/{id}/cancel", orderHandler.Cancel)

		// Notifications
		r.Post("/notifications", ntfHandler.Create)
		r.Get("/notifications", ntfHandler.List)
		r.Get("/notifications/{id}", ntfHandler.Get)
		r.Post("/notifications/{id}/retry", ntfHandler.Retry)
		r.Get("/inbox/{customerID}", ntfHandler.Inbox)

		// Catalog fixtures
		r.Post("/products", catalogHandler.CreateProduct)
		r.Get("/products", catalogHandler.ListProducts)
		r.Post("/coupons", catalogHandler.CreateCoupon)
		r.Get("/coupons", catalogHandler.ListCoupons)
		r.Post("/customers", catalogHandler.CreateCustomer)

		// Stats
		r.Get("/stats", statsHandler.Stats)
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
