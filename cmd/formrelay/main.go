package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/tfkr-ae/formrelay"
	"github.com/tfkr-ae/formrelay/api"
	"github.com/tfkr-ae/formrelay/db"
	"github.com/tfkr-ae/formrelay/listener"
)

const (
	dbFileName      = "formrelay.db"
	shutdownTimeout = 15 * time.Second
	rateLimitWait   = 2 * time.Second
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "formrelay: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	cfg, err := formrelay.LoadConfig(configDir)
	if err != nil {
		return err
	}

	logger, logFile, err := formrelay.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}
	dbConn, err := db.New(filepath.Join(cfg.DataDir, dbFileName))
	if err != nil {
		return err
	}
	repo := db.NewRelayRepo(dbConn)

	relay, err := formrelay.New(
		formrelay.WithLogger(logger),
		formrelay.WithConfig(cfg),
		formrelay.WithRepo(repo),
	)
	if err != nil {
		repo.Close()
		return err
	}
	defer relay.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := relay.Recover(ctx); err != nil {
		return err
	}

	go relay.Cache.Run(ctx, cfg.CleanupInterval)
	if cfg.SweepInterval > 0 {
		go relay.RunSweeper(ctx, cfg.SweepInterval)
	}

	handler := api.New(api.Config{
		APIKey:    cfg.APIKey,
		RateLimit: rate.Limit(cfg.RateLimit),
		RateBurst: cfg.RateBurst,
		MaxWait:   rateLimitWait,
	}, relay, repo, logger)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", ln.Addr().String(), "admin_url", cfg.AdminURL)
		errCh <- srv.Serve(listener.New(ln, logger, cfg.MaxConns))
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
