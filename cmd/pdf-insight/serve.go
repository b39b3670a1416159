package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf-insight/internal/config"
	"github.com/spherical/pdf-insight/internal/observability"
	"github.com/spherical/pdf-insight/internal/session"
	"github.com/spherical/pdf-insight/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg, nil)

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("session_driver", cfg.Session.Driver).
		Str("model", cfg.OpenAI.Model).
		Msg("Starting PDF Insight")

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer store.Close()

	uploads, err := session.NewUploadDir(cfg.Session.UploadDir, cfg.Server.MaxUploadBytes)
	if err != nil {
		return err
	}

	rasterizer, err := newRasterizer(cfg, logger)
	if err != nil {
		return err
	}

	controller := session.NewController(store, uploads, rasterizer, newModelClient(cfg, logger), logger)

	router := web.NewRouter(logger, controller, web.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	return listenAndServe(cfg, logger, router)
}

func newStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.Driver == "redis" {
		return session.NewRedisStore(session.RedisConfig{
			URL:      cfg.Session.Redis.URL,
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
			PoolSize: cfg.Session.Redis.PoolSize,
			Prefix:   cfg.Session.Redis.Prefix,
			TTL:      cfg.Session.TTL,
		})
	}
	return session.NewMemoryStore(cfg.Session.TTL), nil
}

func listenAndServe(cfg *config.Config, logger *observability.Logger, handler http.Handler) error {
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt or error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}
