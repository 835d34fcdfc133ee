package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pmkv"
	"pmkv/internal/config"
	"pmkv/internal/logger"
	"pmkv/internal/server"
	"pmkv/internal/shell"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	poolPath := flag.String("pool", "", "Pool file (overrides config)")
	httpAddr := flag.String("http", "", "HTTP listen address, empty to disable (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.FromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *poolPath != "" {
		cfg.Pool.Path = *poolPath
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	db, err := pmkv.Open(cfg.PoolPath(), pmkv.Options{
		Buckets:     cfg.Index.Buckets,
		Capacity:    cfg.Pool.Capacity,
		MaxKeyLen:   cfg.Pool.MaxKeyLen,
		MaxValueLen: cfg.Pool.MaxValueLen,
		UndoLogSize: cfg.Pool.UndoLogSize,
	})
	if err != nil {
		logger.Error("open pool failed", "path", cfg.PoolPath(), "error", err)
		os.Exit(1)
	}

	var srv *server.Server
	if cfg.HTTP.Addr != "" {
		srv = server.New(db)
		go func() {
			if err := srv.Start(cfg.HTTP.Addr); err != nil {
				logger.Error("http server stopped", "error", err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- shell.Run(db, os.Stdin, os.Stdout) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err = <-done:
		if err != nil {
			logger.Error("reading commands failed", "error", err)
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	}
	if err := db.Close(); err != nil {
		logger.Error("close pool failed", "error", err)
		os.Exit(1)
	}
}
