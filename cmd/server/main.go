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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zarrin/settlement-engine/internal/api"
	"github.com/zarrin/settlement-engine/internal/config"
	"github.com/zarrin/settlement-engine/internal/ledger"
	"github.com/zarrin/settlement-engine/internal/metrics"
	"github.com/zarrin/settlement-engine/internal/pricefeed"
	"github.com/zarrin/settlement-engine/internal/quotelock"
	"github.com/zarrin/settlement-engine/internal/settlement"
	"github.com/zarrin/settlement-engine/internal/store"
	"github.com/zarrin/settlement-engine/internal/transfer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price feed ---
	feed := pricefeed.New(pricefeed.Config{
		InitialBid: cfg.InitialBid,
		InitialAsk: cfg.InitialAsk,
		Interval:   cfg.TickInterval,
		Jitter:     cfg.TickJitter,
		MaxStepBp:  cfg.MaxStepBp,
		MinSpread:  cfg.MinSpread,
	})
	go feed.Run(ctx)

	// --- Core services ---
	lg := ledger.New(st)
	locks := quotelock.NewManager(feed, cfg.LockDuration)
	engine := settlement.NewEngine(lg, locks, feed, cfg.MaxTradeMg)
	intake := transfer.NewIntake(st, lg)

	// --- WebSocket hub ---
	hub := api.NewWSHub()
	go hub.Run()
	go hub.Pump(ctx, feed.Subscribe())

	srv := api.NewServer(feed, locks, lg, engine, intake, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"settlement-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", srv.Routes)

	// --- Server ---
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("settlement-engine listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down settlement-engine...")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("settlement-engine stopped")
}
