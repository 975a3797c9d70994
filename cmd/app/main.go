package main

import (
	"context"
	"flag"
	"log"
	"os"

	"LineGuard/internal/di"
	"LineGuard/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s dataset=%s model=%s", cfg.Environment, cfg.Dataset.Source, cfg.Model.ArtifactPath)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run blocks until SIGINT/SIGTERM.
	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
