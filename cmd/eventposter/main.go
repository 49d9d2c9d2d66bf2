package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"EventPoster/internal/app"
	"EventPoster/internal/config"
	"EventPoster/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the city YAML config (default $EVENT_POSTER_CONFIG)")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), app.Usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd, err := app.ParseCommand(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("error", "text").Error("application stopped", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, cmd, logger)
	if err != nil {
		var cerr *config.ConfigurationError
		if errors.As(err, &cerr) {
			logger.Error("invalid configuration", "command", cmd.Name, "missing", cerr.Missing, "problems", cerr.Problems)
		}
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}

	runErr := application.Run(ctx)
	if err := application.Close(); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	if runErr != nil {
		logger.Error("application stopped", "error", runErr)
		stop()
		os.Exit(1)
	}
}
