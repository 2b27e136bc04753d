package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brokkr-io/brokkr/internal/app"
	"github.com/brokkr-io/brokkr/internal/config"
)

func main() {
	mode := flag.String("mode", "", "run mode: api or worker (overrides MODE)")
	flag.Parse()

	cfg, err := config.Load[config.BrokerConfig]()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Mode = *mode
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
