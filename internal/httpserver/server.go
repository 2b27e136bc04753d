package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// ServerConfig holds the ambient wiring the HTTP server needs but the
// domain layer shouldn't know about.
type ServerConfig struct {
	CORSAllowedOrigins []string
	MetricsPath        string
}

// Server bundles the chi router with the shared dependencies every handler
// needs to build a per-request, tenant-scoped service.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router

	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry

	startedAt time.Time
}

// NewServer wires the ambient middleware chain, health/readiness/metrics
// endpoints, and an /api/v1 subrouter for domain handlers to mount onto.
func NewServer(cfg ServerConfig, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metrics *prometheus.Registry) *Server {
	s := &Server{
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metrics,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Metrics)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Handle(metricsPath, promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))

	api := chi.NewRouter()
	r.Mount("/api/v1", api)

	s.Router = r
	s.APIRouter = api
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.DB.Ping(ctx); err != nil {
		RespondError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable")
		return
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			RespondError(w, http.StatusServiceUnavailable, "not_ready", "redis unreachable")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns process uptime, useful as an unauthenticated
// debug endpoint mounted by internal/app.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
	})
}
