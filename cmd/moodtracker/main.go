package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moodtracker/internal/auth"
	"moodtracker/internal/backend"
	"moodtracker/internal/cache"
	"moodtracker/internal/cli"
	"moodtracker/internal/config"
	apphttp "moodtracker/internal/http"
	applog "moodtracker/internal/log"
	"moodtracker/internal/middleware/ratelimit"
	"moodtracker/internal/notify"
	"moodtracker/internal/sessions"
)

const (
	cacheSweepInterval = 5 * time.Minute
	shutdownTimeout    = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateServer)
	logger := cli.SetupLogger(cfg, applog.ComponentApp)
	defer logger.Close()

	logger.Info("Starting moodtracker", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	}()

	// Ledgers write through the publishing service so every change reaches the mirror.
	notifier := notify.Contextual{Fallback: notify.NewLog(logger.WithComponent(applog.ComponentLedger).Logger)}
	registry := sessions.NewRegistry(res.Entries, notifier, cfg.SessionMaxUsers, cfg.SessionTTL)

	authSvc := auth.NewService(res.Store, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL))
	authSvc.Subscribe(registry.HandleAuth)

	opts := apphttp.DefaultOptions()
	opts.RateLimit = ratelimit.Config{RequestsPerSecond: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:    authSvc,
		Ledgers: registry,
		Health:  res.Store,
		Logger:  logger,
	}, opts)

	caches := cache.NewManager()
	caches.Register("ledgers", registry.Cleaner())
	caches.Register("revoked_tokens", authSvc.RevokedTokens())
	caches.Register("rate_limit", srv.RateLimiter().Cleaner())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return caches.Run(gctx, cacheSweepInterval)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server", applog.FieldOperation, applog.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
