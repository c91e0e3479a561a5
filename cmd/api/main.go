package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sdpflow/internal/app"
)

// In-flight workflow runs get this long to finish after a signal.
const shutdownGrace = 15 * time.Second

func main() {
	log.SetPrefix("sdpflow: ")

	a, err := app.New()
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	go func() {
		if err := a.Start(); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("bye")
}
