package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/sokinpui/concord.go/internal/color"
	"github.com/sokinpui/concord.go/internal/config"
	"github.com/sokinpui/concord.go/internal/hostcfg"
)

func main() {
	log.SetPrefix("setup: ")

	godotenv.Load()
	cfg := config.Load()

	mode := flag.String("mode", "shim", "endpoint wiring: shim, direct or embedded")
	out := flag.String("out", cfg.ConfigFile, "where to write the configuration document")
	expand := flag.Bool("expand", false, "expand ${VAR} references from the environment")
	flag.Parse()

	var doc *hostcfg.Doc
	switch *mode {
	case "shim":
		doc = hostcfg.Shim(cfg.Port)
	case "direct":
		doc = hostcfg.Direct()
	case "embedded":
		doc = hostcfg.Embedded()
	default:
		log.Fatalf("Unknown mode %q (want shim, direct or embedded)", *mode)
	}

	var (
		b   []byte
		err error
	)
	if *expand {
		b, err = doc.Render()
	} else {
		b, err = doc.Placeholder()
	}
	if err != nil {
		log.Fatalf("Failed to render configuration: %v", err)
	}

	if err := hostcfg.WriteFile(*out, b); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	log.Printf("%s %s configuration at %s", color.GreenString("Wrote"), *mode, *out)

	fmt.Println("\n# Point the host at it:")
	fmt.Printf("export PHOENIX_OPENAI_CONFIG_FILE=%q\n", *out)
	fmt.Println(`export PHOENIX_OPENAI_EXTRACT_CONTENT_PATH="choices[0].message.content"`)
	fmt.Println("export PHOENIX_LLM_ENABLE_CONTENT_CAPTURE=true")
	if *mode == "shim" {
		fmt.Printf("\n# Then start the relay on port %d with INFERENCE_KEY set.\n", cfg.Port)
	}
}
