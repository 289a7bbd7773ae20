package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/odvcencio/ilanhub/internal/api"
	"github.com/odvcencio/ilanhub/internal/auth"
	"github.com/odvcencio/ilanhub/internal/config"
	"github.com/odvcencio/ilanhub/internal/eurotax"
	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and background workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServe(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	traceShutdown, err := initTracing(ctx)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(shutdownCtx); err != nil {
			slog.Error("shutdown tracing", "error", err)
		}
	}()

	// Auto-migrate on startup
	db, err := openMigratedDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	kv, err := openCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer kv.Close()
	sender, err := mailSender(cfg)
	if err != nil {
		return err
	}

	var index *eurotax.Index
	if cfg.Eurotax.CSVPath != "" {
		index, err = eurotax.LoadFile(cfg.Eurotax.CSVPath)
		if err != nil {
			return fmt.Errorf("load eurotax reference data: %w", err)
		}
		slog.Info("eurotax reference data loaded", "records", index.Len())
	}

	queue := jobs.NewQueue(db, jobs.QueueOptions{})
	authSvc := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	svc := service.New(service.Deps{
		DB:                  db,
		Auth:                authSvc,
		Cache:               kv,
		Queue:               queue,
		Storage:             store,
		Mail:                sender,
		SMS:                 service.LogSMSSender{},
		Eurotax:             index,
		Metrics:             prometheus.DefaultRegisterer,
		CategoryTTL:         cfg.Cache.CategoryCacheTTL(),
		ListingTTL:          cfg.Jobs.ListingTTL(),
		WebhookAllowPrivate: cfg.Jobs.WebhookAllowPrivate,
		Accounts: service.AccountOptions{
			OTPTTL:         cfg.Auth.OTPValidity(),
			OTPMaxAttempts: cfg.Auth.OTPMaxAttempts,
		},
	})

	dispatcher := jobs.NewDispatcher()
	svc.RegisterJobs(dispatcher)
	pool := jobs.NewWorkerPool(queue, dispatcher.Process, jobs.WorkerPoolOptions{
		Workers:      cfg.Jobs.Workers,
		PollInterval: cfg.Jobs.Poll(),
	})
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := pool.Stop(stopCtx); err != nil {
			slog.Error("stop workers", "error", err)
		}
	}()
	expiry := jobs.NewSweeper("listing-expiry", cfg.Jobs.Sweep(), svc.Listings.ExpireDue, nil)
	expiry.Start(ctx)
	defer expiry.Stop()

	server := api.NewServer(db, authSvc, svc, api.ServerOptions{
		TrustedProxies:     cfg.Server.TrustedProxies,
		AdminAllowedCIDRs:  cfg.Server.AdminCIDRs,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		WebAuthnRPID:       cfg.Auth.WebAuthnRPID,
		WebAuthnOrigin:     cfg.Auth.WebAuthnOrigin,
		EnablePprof:        cfg.Server.EnablePprof,
		Workers:            cfg.Jobs.Workers,
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ilanhub listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
