package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"storefront-catalog/internal/api"
	"storefront-catalog/internal/cache"
	"storefront-catalog/internal/catalog"
	"storefront-catalog/internal/config"
	"storefront-catalog/internal/store"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	store   *store.SQLStore
	cache   cache.Cache
	engine  *catalog.Engine
	service *catalog.Service
	closers []func()
}

// newApp opens the store, applies migrations when asked to, selects the
// cache and builds the catalog service on top of them.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger, migrate bool) (*app, error) {
	s, err := store.Open(ctx, store.Options{
		Driver:       cfg.Store.Driver,
		SQLitePath:   cfg.Store.SQLitePath,
		BusyTimeout:  cfg.Store.BusyTimeout,
		PostgresDSN:  cfg.Postgres.DSN(),
		MaxOpenConns: cfg.Store.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	a := &app{cfg: cfg, logger: logger, store: s}
	a.closers = append(a.closers, func() {
		if err := s.Close(); err != nil {
			logger.Printf("WARN: Error closing database connection: %v", err)
		}
	})
	logger.Printf("INFO: %s store opened.", cfg.Store.Driver)

	if migrate {
		applied, err := s.Migrate(ctx, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to migrate store: %w", err)
		}
		logger.Printf("INFO: %d migration(s) applied.", len(applied))
	}

	c, closeCache, err := newCache(ctx, cfg.Cache, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = c
	a.closers = append(a.closers, closeCache)

	a.engine = catalog.NewEngine(s, catalog.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
		Doubling:    cfg.Retry.Doubling,
	}, nil, logger)
	a.service = catalog.NewService(a.engine, c, catalog.TTLs{
		Search:     cfg.Cache.SearchTTL,
		Listing:    cfg.Cache.ListingTTL,
		Product:    cfg.Cache.ProductTTL,
		Categories: cfg.Cache.CategoriesTTL,
		Tags:       cfg.Cache.TagsTTL,
		Home:       cfg.Cache.HomeTTL,
	}, logger)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newCache builds the configured cache backend. A disabled cache yields a
// no-op implementation so callers never branch on it.
func newCache(ctx context.Context, cfg config.CacheConfig, logger *log.Logger) (cache.Cache, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		logger.Println("INFO: Response cache disabled.")
		return cache.Nop{}, noop, nil
	}

	switch cfg.Driver {
	case "file":
		logger.Printf("INFO: File cache at %s.", cfg.Dir)
		return cache.NewFileCache(cfg.Dir, logger), noop, nil
	case "memory":
		mc := cache.NewMemoryCache(cfg.CleanupInterval, nil, logger)
		logger.Println("INFO: In-memory cache enabled.")
		return mc, mc.Close, nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{URL: cfg.RedisURL, Prefix: cfg.KeyPrefix}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis cache: %w", err)
		}
		logger.Println("INFO: Redis cache connected.")
		return rc, func() {
			if err := rc.Close(); err != nil {
				logger.Printf("WARN: Error closing redis cache: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// newRouter assembles the public and admin HTTP API behind the base
// middleware stack and CORS.
func newRouter(a *app) http.Handler {
	router := chi.NewRouter()
	setupBaseMiddleware(router, a.logger)

	handler := api.NewHTTPHandler(a.service, catalog.Limits{
		DefaultPerPage: a.cfg.Pagination.DefaultPerPage,
		MaxPerPage:     a.cfg.Pagination.MaxPerPage,
		MaxPage:        a.cfg.Pagination.MaxPage,
	}, a.cfg.Admin.APIKey, a.logger)
	handler.RegisterRoutes(router)
	if a.cfg.Admin.APIKey == "" {
		a.logger.Println("WARN: ADMIN_API_KEY is empty; admin routes will refuse every request.")
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		// Preflight Access-Control-Request-Headers must list names in lowercase,
		// as browsers send them; mixed-case names are rejected.
		AllowedHeaders: []string{"Content-Type", api.APIKeyHeader},
		ExposedHeaders: []string{"X-Cache-Hit"},
		MaxAge:         600,
	})
	return corsHandler.Handler(router)
}

func setupBaseMiddleware(router *chi.Mux, logger *log.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	logger.Println("INFO: Base HTTP middleware registered.")
}
