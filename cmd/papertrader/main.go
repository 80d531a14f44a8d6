// cmd/papertrader runs a paper-trading session against Binance market data
// and serves its control routes, live updates and metrics over HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"papertrader/config"
	"papertrader/internal/app"
	"papertrader/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[papertrader] %v", err)
	}
	lg := logger.Init("papertrader", logger.ParseLevel(cfg.LogLevel))

	svc, err := app.New(cfg, lg)
	if err != nil {
		log.Fatalf("[papertrader] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[papertrader] fatal: %v", err)
	}
}
