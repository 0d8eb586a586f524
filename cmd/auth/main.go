package main

import (
	"log"

	"github.com/assetworks/assetauth/internal/auth/app"
	"github.com/joho/godotenv"
)

func main() {
	// Best effort: a missing .env just means plain environment config.
	_ = godotenv.Load()

	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
