package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	if log != nil {
		log.Sync()
	}
	if shutdownTracing != nil {
		shutdownTracing(context.Background())
	}
	if err != nil {
		os.Exit(1)
	}
}
