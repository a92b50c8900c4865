package main

import (
	"log"

	"glasstrace-service/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	srv := app.NewServer()
	if err := srv.Start(); err != nil {
		log.Fatalf("server failed to start: %v", err)
	}
}
