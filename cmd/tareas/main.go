package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/tareas/internal/config"
	"github.com/dukerupert/tareas/internal/database"
	"github.com/dukerupert/tareas/internal/logging"
	"github.com/dukerupert/tareas/internal/server"
)

func main() {
	configPath := os.Getenv("TAREAS_CONFIG")
	if configPath == "" {
		configPath = "tareas.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sched := srv.SyncScheduler(); sched != nil {
		if err := sched.Start(ctx); err != nil {
			logger.Error("start sync scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}
	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}
	defer srv.Pomodoros().StopAll()

	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)
	go runCleanup(ctx, srv, logger)

	// WriteTimeout is generous: provider chains may try several backends.
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tareas listening", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// runCleanup drops expired sessions and notifications every hour.
func runCleanup(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("delete expired sessions", "error", err)
			} else if n > 0 {
				logger.Debug("deleted expired sessions", "count", n)
			}
			srv.Notifier().Prune()
		}
	}
}
