package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/samurai-chat/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/samurai-chat/internal/api/middlewares"
	"github.com/markdave123-py/samurai-chat/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, svcs *Services, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, svcs, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "http"),
	}
}

// NewRouter returns the API handler tree.
func NewRouter(cfg *config.Config, svcs *Services, logger *slog.Logger) http.Handler {
	authHandler := handlers.NewAuthHandler(svcs.Users, cfg.JWTSecret, logger)
	chatHandler := handlers.NewChatHandler(svcs.Chat, svcs.Convs, svcs.Responses, cfg.EngineCallbackSecret, logger)
	dataHandler := handlers.NewDataHandler(svcs.Catalog, cfg.MaxUploadBytes, logger)
	healthHandler := handlers.NewHealthHandler(svcs.DB)
	verifier := appMiddleware.NewJWTVerifier(cfg.JWTSecret, svcs.DB, logger)

	// Leave room for every dispatch attempt plus the surrounding work.
	requestTimeout := cfg.DispatchTimeout*time.Duration(cfg.DispatchRetries+1) + 30*time.Second

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", healthHandler.Healthz)

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// engine callback, guarded by the shared secret when configured
		api.Post("/chat/receive-response", chatHandler.ReceiveResponse)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(verifier.Middleware)
			protected.Post("/chat/turn", chatHandler.SubmitTurn)
			protected.Get("/chat/conversation/{conversationId}", chatHandler.GetConversation)

			protected.Post("/data/user-data", dataHandler.Upload)
			protected.Get("/data/user-data", dataHandler.List)
			protected.Delete("/data/user-data/{filename}", dataHandler.Delete)
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
