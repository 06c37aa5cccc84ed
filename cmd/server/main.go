package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/eavcache"
	"github.com/lychee-technology/eavcache/factory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the metadata cache of this process over HTTP.
type Server struct {
	cache       eavcache.MetadataCache
	invalidator eavcache.Invalidator
	gatherer    prometheus.Gatherer
	mux         *http.ServeMux
}

// NewServer creates a new Server instance
func NewServer(cache eavcache.MetadataCache, invalidator eavcache.Invalidator, gatherer prometheus.Gatherer) *Server {
	return &Server{
		cache:       cache,
		invalidator: invalidator,
		gatherer:    gatherer,
		mux:         http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("GET /api/v1/entity-types", s.handleListEntityTypes)
	s.mux.HandleFunc("GET /api/v1/entity-types/{entityType}", s.handleGetEntityType)
	s.mux.HandleFunc("GET /api/v1/entity-types/{entityType}/attributes", s.handleListAttributes)
	s.mux.HandleFunc("GET /api/v1/entity-types/{entityType}/attributes/{attribute}", s.handleGetAttribute)
	s.mux.HandleFunc("GET /api/v1/entity-types/{entityType}/attribute-codes", s.handleAttributeCodes)
	s.mux.HandleFunc("GET /api/v1/attribute-sets/{id}", s.handleGetAttributeSet)
	s.mux.HandleFunc("POST /api/v1/schema-events", s.handleSchemaEvent)
	s.mux.HandleFunc("POST /api/v1/invalidate", s.handleInvalidate)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	config, err := eavcache.LoadConfig(os.Getenv("EAVCACHE_CONFIG"))
	if err != nil {
		sugar.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	var pool *pgxpool.Pool
	if config.Source.Kind == eavcache.SourceKindPostgres {
		pool, err = factory.NewPool(ctx, config.Database)
		if err != nil {
			sugar.Fatalf("failed to create database pool: %v", err)
		}
		defer pool.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err != nil {
			sugar.Fatalf("failed to ping database: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory.RegisterTelemetryEmitter(newMetrics(registry).emit)

	rt, err := factory.NewRuntime(ctx, config, pool, nil)
	if err != nil {
		sugar.Fatalf("failed to create metadata cache runtime: %v", err)
	}
	defer rt.Close()

	cache, release := rt.NewMetadataCache()
	defer release()

	if getEnvBool("EAVCACHE_WARM", true) {
		if err := cache.Warm(ctx); err != nil {
			sugar.Warnw("failed to warm metadata cache; lookups will retry", "error", err)
		}
	}

	server := NewServer(cache, rt.Invalidator(), registry)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
