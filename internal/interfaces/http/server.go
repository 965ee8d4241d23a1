// Package http wires the public API: routing, middleware, and the health
// endpoint. Endpoint behavior lives in the handlers subpackage; this
// package owns the server lifecycle.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/config"
	"github.com/skillswap/swapd/internal/interfaces/http/handlers"
	"github.com/skillswap/swapd/internal/metrics"
)

// requestTimeout bounds one request end to end. Embedding calls dominate
// the worst case, so this is generous next to the read/write timeouts.
const requestTimeout = 30 * time.Second

// Server is the API server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers.Handlers
	health   *HealthHandler
	metrics  *metrics.Registry
	cfg      config.HTTPConfig
	log      zerolog.Logger
}

// NewServer builds the server and verifies the port is free. The metrics
// registry may be nil; request metrics are then skipped.
func NewServer(
	cfg config.Config,
	svc handlers.Services,
	c cache.Cache,
	reg *metrics.Registry,
	log zerolog.Logger,
) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.HTTP.Port, err)
	}
	listener.Close()

	s := &Server{
		router:   mux.NewRouter(),
		handlers: handlers.NewHandlers(svc, log),
		health:   NewHealthHandler(cfg, c),
		metrics:  reg,
		cfg:      cfg.HTTP,
		log:      log.With().Str("component", "http").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	return s, nil
}

// Router exposes the configured routes for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	// Prometheus exposition stays off the JSON subrouter: it speaks the
	// text format.
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.Handle("/healthz", s.health).Methods("GET")

	h := s.handlers

	api.HandleFunc("/profiles/upsert", h.UpsertProfile).Methods("POST")
	api.HandleFunc("/profiles/email/{email}", h.GetProfileByEmail).Methods("GET")
	api.HandleFunc("/profiles/{uid}", h.GetProfile).Methods("GET")
	api.HandleFunc("/profiles/{uid}", h.PatchProfile).Methods("PATCH")
	api.HandleFunc("/profiles/{uid}", h.DeleteProfile).Methods("DELETE")
	api.HandleFunc("/profiles/{uid}/reindex", h.ReindexProfile).Methods("POST")

	api.HandleFunc("/search", h.SearchProfiles).Methods("POST")
	api.HandleFunc("/search/recommend-skills", h.RecommendSkills).Methods("POST")
	api.HandleFunc("/match/reciprocal", h.ReciprocalMatch).Methods("POST")

	api.HandleFunc("/swap-requests", h.CreateSwapRequest).Methods("POST")
	api.HandleFunc("/swap-requests/incoming", h.IncomingSwapRequests).Methods("GET")
	api.HandleFunc("/swap-requests/outgoing", h.OutgoingSwapRequests).Methods("GET")
	api.HandleFunc("/swap-requests/{id}", h.GetSwapRequest).Methods("GET")
	api.HandleFunc("/swap-requests/{id}/respond", h.RespondToSwapRequest).Methods("POST")
	api.HandleFunc("/swap-requests/{id}", h.CancelSwapRequest).Methods("DELETE")

	api.HandleFunc("/swaps/completed", h.CompletedSwaps).Methods("GET")
	api.HandleFunc("/swaps/{id}/complete", h.MarkComplete).Methods("POST")
	api.HandleFunc("/swaps/{id}/verify", h.VerifyCompletion).Methods("POST")
	api.HandleFunc("/swaps/{id}/completion-status", h.CompletionStatus).Methods("GET")

	api.HandleFunc("/reviews", h.CreateReview).Methods("POST")
	api.HandleFunc("/reviews/user/{uid}", h.ReceivedReviews).Methods("GET")
	api.HandleFunc("/reviews/given/{uid}", h.GivenReviews).Methods("GET")
	api.HandleFunc("/reviews/swap/{swap_id}", h.SwapReviews).Methods("GET")
	api.HandleFunc("/reviews/check/{swap_id}", h.CheckReview).Methods("GET")

	api.HandleFunc("/points/balance/{uid}", h.Balance).Methods("GET")
	api.HandleFunc("/points/spend", h.SpendPoints).Methods("POST")
	api.HandleFunc("/points/transactions/{uid}", h.TransactionHistory).Methods("GET")
	api.HandleFunc("/points/boosts/{uid}", h.ActiveBoosts).Methods("GET")

	api.HandleFunc("/portfolio/user/{uid}", h.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/stats/{uid}", h.GetPortfolioStats).Methods("GET")

	// unread-count would otherwise be swallowed by the {id} route.
	api.HandleFunc("/conversations", h.ListConversations).Methods("GET")
	api.HandleFunc("/conversations/unread-count", h.UnreadCount).Methods("GET")
	api.HandleFunc("/conversations/{id}", h.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", h.GetMessages).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", h.SendMessage).Methods("POST")
	api.HandleFunc("/conversations/{id}/mark-read", h.MarkRead).Methods("POST")

	api.HandleFunc("/moderation/block", h.BlockUser).Methods("POST")
	api.HandleFunc("/moderation/block/{blocked_uid}", h.UnblockUser).Methods("DELETE")
	api.HandleFunc("/moderation/blocked", h.ListBlocked).Methods("GET")
	api.HandleFunc("/moderation/report", h.ReportUser).Methods("POST")
	api.HandleFunc("/moderation/reports", h.MyReports).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
	// Preflights arrive as OPTIONS on paths registered under other verbs.
	// mux routes a method mismatch here without running middleware, so the
	// CORS headers are set again by hand.
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.handlers.MethodNotAllowed(w, r)
	})
}

// requestIDMiddleware tags each request with a short id, echoed in the
// X-Request-ID header and carried by the context logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", requestID)
		logger := s.log.With().Str("request_id", requestID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

// loggingMiddleware logs every served request and feeds the request
// metrics, labeled by route template rather than raw path.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, r.Method, wrapper.statusCode, elapsed)
		}
		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("elapsed", elapsed).
			Str("remote", r.RemoteAddr).
			Msg("request served")
	})
}

// timeoutMiddleware enforces the per-request deadline.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id")
}

// corsMiddleware answers preflights and opens the API to browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets the JSON content type for API responses.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// Address returns the bound host:port.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// responseWrapper captures the status code for logging and metrics.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
