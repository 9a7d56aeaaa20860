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
)

func main() {
	log.SetPrefix("probe: ")

	godotenv.Load()
	cfg := config.Load()

	which := "all"
	if len(os.Args) > 1 {
		which = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The offline probes run without a key.
	offline := diag.NewRunner(cfg, nil, os.Stdout)
	switch which {
	case "curl":
		offline.Curl()
		return
	case "selftest":
		if err := offline.SelfTest(); err != nil {
			log.Fatalf("Self test failed: %v", err)
		}
		return
	}

	c, err := client.New(client.Config{
		BaseURL: cfg.BaseURL(),
		APIKey:  cfg.InferenceKey,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize inference client: %v", err)
	}
	defer c.Close()

	r := diag.NewRunner(cfg, c, os.Stdout)

	var runErr error
	switch which {
	case "all":
		runErr = r.All(ctx)
	case "expectations":
		runErr = r.Expectations(ctx)
	case "schema":
		runErr = r.Schema(ctx)
	case "path":
		runErr = r.PathTrace(ctx)
	case "formats":
		runErr = r.Formats(ctx)
	case "suggest":
		runErr = r.Suggest(ctx)
	default:
		log.Fatalf("Unknown probe %q (want all, curl, selftest, expectations, schema, path, formats or suggest)", which)
	}
	if runErr != nil {
		log.Fatalf("Probe failed: %v", runErr)
	}
}
