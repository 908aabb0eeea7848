package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/admission"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/config"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/cooldown"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/handler"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/logger"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/middleware"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/service"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/store"
	syncer "github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/sync"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "qc-leaderboards",
	})
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer l.Sync()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		l.Fatal("could not initialize the database, check read/write permissions or remove the database file", err)
	}
	defer db.Close()

	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.GameID, cfg.Upstream.Timeout)
	synchronizer := syncer.New(db, client, l, cfg.Refresh.TTL)

	if err := synchronizer.Initialize(context.Background()); err != nil {
		l.Fatal("initial synchronization failed", err)
	}

	gate := cooldown.NewGate(cfg.Refresh.LevelCooldown)
	limiter := admission.NewLimiter(cfg.Submit.MaxAttempts, cfg.Submit.LockoutWindow)
	leaderboards := service.New(db, synchronizer, gate, limiter, cfg.Submit.PasswordHash, l)
	h := handler.NewLeaderboardHandler(leaderboards, l)

	if cfg.Submit.PasswordHash == "" {
		l.Warn("no submit password hash configured, shift submissions are disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(l))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/runs", h.HandleAllRuns)
	r.Get("/api/shifts", h.HandleAllShifts)
	r.Get("/api/users", h.HandleAllUsers)
	r.Get("/api/levels/{level_id}/runs", h.HandleLevelRuns)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(5, 10))
		r.Post("/api/shifts", h.HandleSubmitShift)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		l.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal("server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error("server forced shutdown", err)
		os.Exit(1)
	}

	l.Info("server stopped")
}
