// Command docflow runs the document generation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/docflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "docflow:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("DOCFLOW_CONFIG"), "path to a YAML configuration file")
	flag.Parse()

	cfg, err := docflow.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := docflow.NewJSONServiceLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		logger.Error("Falling back to info level", err, docflow.LogFields{"log_level": cfg.LogLevel})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := docflow.NewService(&cfg, logger, ctx, docflow.ServiceDependencies{
		Hooks: docflow.LoggingHooks(logger),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close transport", err, nil)
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	logger.Info("Document service stopped", nil)
	return nil
}
