package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"switchboard/internal/api"
	"switchboard/internal/api/handlers"
	"switchboard/internal/api/middleware"
	"switchboard/internal/engine/proxy"
	"switchboard/internal/engine/registry"
	"switchboard/internal/engine/stats"
	"switchboard/internal/engine/tenants"
	"switchboard/internal/engine/vault"
	"switchboard/internal/engine/webhooks"
	"switchboard/internal/pkg/logger"
	"switchboard/internal/platform/audit"
	"switchboard/internal/platform/auth"
	"switchboard/internal/platform/config"
	"switchboard/internal/platform/database"
	"switchboard/internal/platform/metrics"
	"switchboard/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	// A missing master key leaves a zero vault: every seal and open then
	// fails with KeyError instead of the process refusing to start.
	v, err := vault.New(cfg.Vault.MasterKey)
	if err != nil {
		log.Error().Err(err).Msg("credential vault disabled")
		v = &vault.Vault{}
	}

	m := metrics.New()

	// Repositories
	tenantRepo := repositories.NewTenantRepository(db)
	registrationRepo := repositories.NewRegistrationRepository(db)
	callRepo := repositories.NewCallRecordRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	auditLogger := audit.NewLogger(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	resolver := tenants.NewResolver(tenantRepo, cfg.Tenants.CacheTTL, m)
	registrySvc := registry.NewService(registrationRepo, v)
	statsSvc := stats.NewService(callRepo)
	recorder := stats.NewRecorder(callRepo, m, cfg.Stats.MaxBodyBytes)

	router := webhooks.NewRouter(resolver, registrySvc)
	poster := webhooks.NewPoster(&http.Client{}, cfg.Functions.SigningSecret)
	policy := webhooks.DeadlinePolicy{EventTimeout: cfg.Broadcaster.EventTimeout}
	invoker := webhooks.NewInvoker(router, v, recorder, poster, policy)
	broadcaster := webhooks.NewBroadcaster(router, v, recorder, poster, policy, m, webhooks.BroadcasterConfig{
		MaxRetries:   cfg.Broadcaster.MaxRetries,
		RetryBackoff: cfg.Broadcaster.RetryBackoff,
		MaxInFlight:  cfg.Broadcaster.MaxInFlight,
	})

	catalog, err := proxy.NewCatalog(cfg.Providers)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid provider catalog")
	}
	credentials := proxy.NewCredentials(credentialRepo, v, catalog)
	externalProxy := proxy.New(resolver, credentials, catalog, &http.Client{}, proxy.Config{
		SharedSecret: cfg.Proxy.SharedSecret,
		Timeout:      cfg.Proxy.Timeout,
	}, m)

	eventLimiter := middleware.NewRateLimiter(cfg.RateLimit.EventsPerMinute, cfg.RateLimit.EventsBurst)
	defer eventLimiter.Stop()

	deps := &api.Dependencies{
		FunctionHandler:     handlers.NewFunctionHandler(invoker),
		EventHandler:        handlers.NewEventHandler(broadcaster),
		ProxyHandler:        handlers.NewProxyHandler(externalProxy),
		RegistrationHandler: handlers.NewRegistrationHandler(registrySvc, statsSvc, auditLogger),
		CredentialHandler:   handlers.NewCredentialHandler(credentials, auditLogger),
		StatsHandler:        handlers.NewStatsHandler(statsSvc),
		AuditHandler:        handlers.NewAuditHandler(auditLogger),
		HealthHandler:       handlers.NewHealthHandler(db),
		MetricsHandler:      handlers.NewMetricsHandler(m),
		AuthMiddleware:      middleware.NewAuthMiddleware(tokenSvc),
		TenantMiddleware:    middleware.NewTenantMiddleware(resolver),
		EventRateLimiter:    eventLimiter,
		FunctionSecret:      cfg.Functions.SharedSecret,
		MaxBodyBytes:        cfg.Server.MaxBodyBytes,
		Logger:              log.Logger,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Int("providers", len(catalog.Providers())).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server did not drain")
	}
	if err := broadcaster.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("event dispatches aborted at shutdown")
	}
	log.Info().Msg("server stopped")
}
