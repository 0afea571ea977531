// Command mindmapd generates mermaid mind maps with a local Ollama model.
// It reads the same configuration as the main server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/tareas/internal/config"
	"github.com/dukerupert/tareas/internal/logging"
	"github.com/dukerupert/tareas/internal/middleware"
	"github.com/dukerupert/tareas/internal/mindmap"
	"github.com/dukerupert/tareas/internal/provider"
)

func main() {
	configPath := os.Getenv("TAREAS_CONFIG")
	if configPath == "" {
		configPath = "tareas.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Setup("info", "text").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	addr := os.Getenv("MINDMAPD_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	ollama := provider.NewOllama(provider.OllamaConfig{
		BaseURL:    cfg.Ollama.URL,
		Model:      cfg.Ollama.Model,
		NumPredict: 500,
		Timeout:    60 * time.Second,
	})
	svc := mindmap.NewService(ollama, logger.With("component", "mindmap"))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      middleware.RequestLogger(logger.With("component", "http"))(svc.Handler()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("mindmapd listening", "addr", addr, "ollama", cfg.Ollama.URL, "model", cfg.Ollama.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
