// Command server runs the forum's real-time WebSocket gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/forumchat/internal/auth"
	"github.com/Tyrowin/forumchat/internal/bus"
	"github.com/Tyrowin/forumchat/internal/module"
	"github.com/Tyrowin/forumchat/internal/server"
	"github.com/Tyrowin/forumchat/internal/storage/sqlite"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	var addr, dbPath, logLevel, origins string
	flagSet := pflag.NewFlagSet("forumchat", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides API_HOST and API_PORT (e.g. :8080)")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path, overrides DATABASE_URL")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides LOG_LEVEL")
	flagSet.StringVar(&origins, "allowed-origins", "", "comma separated WebSocket origins, overrides ALLOWED_ORIGINS")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if addr != "" {
		if err := cfg.SetAddr(addr); err != nil {
			return err
		}
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if origins != "" {
		cfg.AllowedOrigins = server.ParseOrigins(origins)
	}
	*cfg = server.Sanitize(*cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	resolver, err := auth.NewTokenResolver([]byte(cfg.JWTSecret))
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing store", "error", err)
		}
	}()

	gateway, err := server.NewGateway(server.Options{
		Config:   *cfg,
		Modules:  module.Default(),
		Topics:   bus.NewRegistry(cfg.BusCapacity),
		Store:    store,
		Resolver: resolver,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	gateway.Start()

	httpServer := server.CreateServer(cfg.Addr(), server.SetupRoutes(gateway))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		// Stop accepting upgrades first so no session registers after the hub stops.
		serverErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout)
		hubErr := gateway.Shutdown(cfg.ShutdownTimeout)
		return errors.Join(serverErr, hubErr)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
