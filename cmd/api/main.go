package main

import (
	"context"
	"log"
	"time"

	"boletin-backend/internal/bootstrap"
	"boletin-backend/internal/shared/config"
	"boletin-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := bootstrap.Build(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close(context.Background())

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
