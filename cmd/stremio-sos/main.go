// Package main is the entry point for the stremio-sos add-on.
package main

import (
	"context"
	"log"

	"stremio-sos-go/internal/app"
)

func main() {
	// Create and initialize application
	application, err := app.New()
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	// Run the server; returns after draining and flushing the cache
	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
