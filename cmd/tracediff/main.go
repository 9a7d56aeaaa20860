package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sokinpui/concord.go/client"
	"github.com/sokinpui/concord.go/internal/config"
	"github.com/sokinpui/concord.go/internal/diag"
	"github.com/sokinpui/concord.go/internal/phoenix"
)

func main() {
	log.SetPrefix("tracediff: ")

	godotenv.Load()
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := diag.NewRunner(cfg, c, os.Stdout)
	if err := r.TraceDiff(ctx, phoenix.New(cfg.PhoenixURL)); err != nil {
		log.Fatalf("Trace comparison failed: %v", err)
	}
}
