package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librarydesk/internal/util"
	"librarydesk/services/circulation/internal/app"
	"librarydesk/services/circulation/internal/config"
	"librarydesk/services/circulation/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		LoanDays:    cfg.LoanDays,
		FinePerDay:  cfg.FinePerDay,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, _, err := appCore.SeedFromFile(ctx, cfg.SeedPath); err != nil {
		log.Fatalf("failed to seed catalog: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		RedisAddr:          cfg.RedisAddr,
		RedisPassword:      cfg.RedisPassword,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxyCIDRs:  cfg.TrustedProxyCIDRs,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer httpServer.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err = httpServer.Ping(pingCtx)
	cancelPing()
	if err != nil {
		log.Fatalf("failed to reach redis at %s: %v", cfg.RedisAddr, err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	policy := appCore.Policy()
	slog.Info("circulation server listening", "addr", addr, "loan_days", policy.LoanDays, "fine_per_day", policy.PerDay)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
