package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sokinpui/concord.go/client"
	"github.com/sokinpui/concord.go/internal/capture"
	"github.com/sokinpui/concord.go/internal/config"
	"github.com/sokinpui/concord.go/internal/server"
)

func main() {
	log.SetPrefix("shim: ")

	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg := config.Load()

	c, err := client.New(client.Config{
		BaseURL: cfg.BaseURL(),
		APIKey:  cfg.InferenceKey,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize inference client: %v", err)
	}
	defer c.Close()

	captures := capture.NewRing(100)
	srv := server.NewHTTPServer(cfg, c, captures)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping shim...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	log.Printf("Relaying %s -> %s (model %s, key %s)", httpSrv.Addr, cfg.BaseURL(), cfg.ModelID, cfg.RedactedKey())
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to serve: %v", err)
	}
}
