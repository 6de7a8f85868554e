package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/cache"
	"tally/internal/cli"
	apphttp "tally/internal/http"
	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/view"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig()
	cli.MustValidate(logger, cfg.Validate)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid time zone", log.FieldError, err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", backendCfg.Type.String())
		os.Exit(1)
	}

	tokens, err := identity.NewTokens(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("Failed to set up session tokens", log.FieldError, err)
		os.Exit(1)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	sessions := view.NewSessions(runCtx, res.Store, view.Options{
		Location:  loc,
		Logger:    logger,
		RevokeFor: cfg.TokenTTL,
	})
	caches := cache.NewManager(logger)
	caches.Register(sessions.Revoked())
	caches.Register(sessions)
	caches.StartCleanup(10 * time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Sessions:          sessions,
		Tokens:            tokens,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger,
	})
	srv.ReadTimeout = 10 * time.Second
	// Long polls hold the response open for up to 25s.
	srv.WriteTimeout = 40 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(runCtx)

	shutdown := func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		stop()
		if err := g.Wait(); err != nil {
			logger.Error("Service stopped with error", log.FieldError, err)
		}
		sessions.CloseAll()
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	}
	sigCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, shutdown)

	g.Go(func() error {
		logger.Info("Starting tally server",
			"port", cfg.Port,
			"backend", backendCfg.Type.String(),
			"change_bus", res.Bus != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
		}
		return nil
	})

	if res.Bus != nil {
		listener := services.NewChangeListener(res.Backend, res.Origin, logger)
		g.Go(func() error {
			err := res.Bus.Consume(gctx, amqp.EphemeralQueue(), listener.Handle)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	<-gctx.Done()
	if sigCtx.Err() != nil {
		<-done
		logger.Info("Server stopped gracefully")
		return
	}

	logger.Error("Service stopped unexpectedly")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	shutdown(ctx)
	cancel()
	os.Exit(1)
}
