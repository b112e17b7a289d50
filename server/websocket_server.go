package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/citmax/maxxi-live/config"
	"github.com/citmax/maxxi-live/messages"
	"github.com/citmax/maxxi-live/metrics"
	"github.com/citmax/maxxi-live/session"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Server exposes the voice gateway over WebSocket
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	metrics        *metrics.Metrics
	config         *config.Config
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Calls    int    `json:"calls"`
}

// NewServerWebsocket wires the routes. ctx bounds background work such as
// rate limiter cleanup.
func NewServerWebsocket(ctx context.Context, cfg *config.Config, sessionManager *session.Manager, m *metrics.Metrics) *Server {
	s := &Server{
		sessionManager: sessionManager,
		metrics:        m,
		config:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024, // 64KB for audio chunks
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler)

	router.With(RateLimitByIP(ctx, cfg.ConnectRate, cfg.ConnectBurst)).Get("/ws", s.handleWebSocket)
	router.Get("/health", s.handleHealth)
	if m != nil {
		router.Method(http.MethodGet, "/metrics", m.Handler())
	}
	s.router = router

	// No read/write timeouts: voice sessions are long-lived WebSockets
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("🚀 WebSocket server starting")
	log.Info().Msgf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("🛑 Shutting down server...")
	s.sessionManager.Shutdown(ctx)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	clientSession, err := s.sessionManager.CreateSession(r.Context(), conn)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Failed to create session")
		errMsg := messages.NewErrorMessage("", messages.ErrCodeSessionFailed, err.Error())
		_ = conn.WriteJSON(errMsg)
		_ = conn.Close()
		return
	}

	logger := log.With().
		Str("session", clientSession.ID).
		Str("request_id", chimw.GetReqID(r.Context())).
		Logger()
	logger.Info().Str("remote", r.RemoteAddr).Msg("✅ New session created")

	clientSession.Start()
	<-clientSession.CloseChan

	// The request context is done once the handler returns; use a fresh one
	_ = s.sessionManager.RemoveSession(context.WithoutCancel(r.Context()), clientSession.ID)
	logger.Info().Msg("🔌 Session closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body, err := sonic.Marshal(HealthResponse{
		Status:   "ok",
		Sessions: s.sessionManager.GetActiveSessionCount(),
		Calls:    s.sessionManager.GetLiveCallCount(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
