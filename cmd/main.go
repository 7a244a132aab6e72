package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oarkflow/ip"
	"github.com/prometheus/client_golang/prometheus"

	threatlens "github.com/threatlens/threatlens"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ip.Init()

	cfg, err := threatlens.LoadConfig(configPath)
	if err != nil {
		return err
	}
	threatlens.SetLogLevel(cfg.LogLevel)

	store, err := threatlens.OpenStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog := threatlens.DefaultCatalog()
	if cfg.SignatureFile != "" {
		catalog, err = threatlens.LoadCatalog(cfg.SignatureFile)
		if err != nil {
			return fmt.Errorf("load signature file: %w", err)
		}
	}
	provider := threatlens.NewCatalogProvider(catalog)

	if cfg.SignatureFile != "" {
		stop, err := threatlens.WatchCatalog(cfg.SignatureFile, provider)
		if err != nil {
			return fmt.Errorf("watch signature file: %w", err)
		}
		defer stop()
	}

	registry := prometheus.NewRegistry()
	if err := threatlens.RegisterMetrics(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	hub := threatlens.NewHub()
	srv := threatlens.NewServer(cfg, store, provider, hub, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
