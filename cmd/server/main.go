package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrapemaster/sentinel/internal/cli"
	"github.com/scrapemaster/sentinel/internal/config"
	"github.com/scrapemaster/sentinel/internal/version"
	"github.com/scrapemaster/sentinel/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLog := logger.NewStructuredLogger(cfg.Logging.Level, cfg.Logging.Format)
	structuredLog.WithFields(map[string]interface{}{
		"version":     version.Version,
		"environment": cfg.Environment,
	}).Info("Starting Sentinel threat detection server")

	runtime, err := cli.BuildRuntime(cfg, structuredLog, nil)
	if err != nil {
		log.Fatalf("Failed to build runtime: %v", err)
	}
	if err := runtime.Start(); err != nil {
		log.Fatalf("Failed to start runtime: %v", err)
	}
	defer runtime.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      runtime.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		structuredLog.WithFields(map[string]interface{}{"addr": srv.Addr}).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	structuredLog.Info("Server exited")
}
