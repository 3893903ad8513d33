package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/auth"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/config"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/db"
	httpx "github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/http"
	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	// tracing is optional; a missing collector should not stop the API
	shutdownTracer, err := observability.InitTracer(ctx, "user-service", cfg.OTLPEndpoint)

	if err != nil {
		log.Warn("tracing disabled", "err", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("could not connect to database", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	err = db.RunMigrations(ctx, cfg.DBURL)

	if err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	err = db.EnsureAdminUser(ctx, pool, cfg)

	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	denylist := auth.NewDenylist(auth.DenylistConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	defer denylist.Close()

	pingCtx, cancelPing := config.WithTimeout(2 * time.Second)

	if err := denylist.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, logout revocation degraded", "err", err)
	}

	cancelPing()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	router := httpx.NewRouter(log, pool, denylist, prom, reg, cfg)

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
