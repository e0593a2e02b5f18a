package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"aca-sandbox/internal/config"
	"aca-sandbox/internal/lesson"
	"aca-sandbox/internal/monitor"
	"aca-sandbox/internal/storage"
	"aca-sandbox/internal/toolkit"
)

// Server is the HTTP front end of the tool service.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and
// middleware. db is only set when the manifest lives in Postgres; it feeds
// the health check.
func NewServer(cfg *config.Config, svc *toolkit.Service, lessons *lesson.Catalog, db *storage.DB, metrics *monitor.Metrics) *Server {
	handlers := NewHandlers(svc, lessons, cfg.Server.MaxCodeChars)

	s := &Server{
		handlers:  handlers,
		cfg:       cfg,
		startTime: time.Now(),
	}

	if len(cfg.Security.AllowedKeys) == 0 {
		log.Warn().Msg("no API keys configured, all requests will be accepted")
	}

	// Only the routes that run code are rate limited.
	limit := RateLimitMiddleware(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)

	apiMux := http.NewServeMux()
	apiMux.Handle("POST /execute", limit(http.HandlerFunc(handlers.HandleExecute)))
	apiMux.Handle("POST /execute/stream", limit(http.HandlerFunc(handlers.HandleExecuteStream)))
	apiMux.HandleFunc("POST /lint", handlers.HandleLint)
	apiMux.HandleFunc("POST /analyze", handlers.HandleAnalyze)
	apiMux.HandleFunc("POST /suggest", handlers.HandleSuggest)
	apiMux.HandleFunc("POST /explain", handlers.HandleExplain)
	apiMux.HandleFunc("POST /read", handlers.HandleRead)
	apiMux.HandleFunc("GET /manifest", handlers.HandleManifest)
	apiMux.HandleFunc("GET /lessons", handlers.HandleListLessons)
	apiMux.HandleFunc("GET /lessons/{name}", handlers.HandleGetLesson)

	authedAPI := AuthMiddleware(cfg.Security.APIKeyHeader, cfg.Security.AllowedKeys)(apiMux)

	// Health and metrics bypass auth.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth(svc, db))
	if cfg.Metrics.Enabled && metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", authedAPI)

	// Outermost last.
	var handler http.Handler = mux
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = MetricsMiddleware(metrics)(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler exposes the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests. Uses TLS if configured.
func (s *Server) Start() error {
	if s.cfg.TLS.Enabled {
		log.Info().
			Str("addr", s.httpServer.Addr).
			Str("cert", s.cfg.TLS.CertFile).
			Msg("starting HTTPS server with TLS")

		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(svc *toolkit.Service, db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbOK := db == nil || db.Healthy(r.Context())

		resp := HealthResponse{
			Status:   "ok",
			Database: dbOK,
			Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		}
		if svc != nil {
			resp.Languages = svc.Languages()
		}

		status := http.StatusOK
		if !dbOK || svc == nil {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, resp)
	}
}
