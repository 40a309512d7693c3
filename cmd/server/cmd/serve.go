package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lowc1012/flight-change-api/internal/auth"
	"github.com/lowc1012/flight-change-api/internal/config"
	"github.com/lowc1012/flight-change-api/internal/flights"
	"github.com/lowc1012/flight-change-api/internal/log"
	"github.com/lowc1012/flight-change-api/internal/ratelimiter"
	"github.com/lowc1012/flight-change-api/internal/server"
	"github.com/lowc1012/flight-change-api/internal/store"
	"github.com/lowc1012/flight-change-api/internal/tracing"
)

const serviceName = "flight-change-api"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := log.Init(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Exporter:       cfg.Tracing.Exporter,
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	windowStore, err := store.NewRedisStore(store.Options{
		URL:               cfg.Store.URL,
		Timeout:           cfg.Store.Timeout,
		ReconnectInterval: cfg.Store.ReconnectInterval,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer windowStore.Close()

	if err := windowStore.Connect(ctx); err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			return err
		}
		logger.Warn("Window store unreachable at startup, requests follow the failure policy until it recovers",
			zap.String("policy", cfg.RateLimit.FailurePolicy),
			zap.Error(err),
		)
	}

	policy, err := ratelimiter.ParseFailurePolicy(cfg.RateLimit.FailurePolicy)
	if err != nil {
		return err
	}

	registry := server.NewRegistry()
	limiter, err := ratelimiter.NewSlidingWindowLimiter(ratelimiter.Config{
		Store:   windowStore,
		Limit:   cfg.RateLimit.Requests,
		Window:  cfg.RateLimit.Window,
		Prefix:  cfg.RateLimit.Prefix,
		Policy:  policy,
		Metrics: ratelimiter.NewMetrics(registry),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.APIKey)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Addr:     cfg.HTTP.Addr,
		Store:    windowStore,
		Limiter:  limiter,
		Verifier: verifier,
		Flights: flights.NewHandler(flights.Options{
			Seed:        cfg.Mock.Seed,
			LookupDelay: cfg.Mock.LookupDelay,
			Logger:      logger,
		}),
		AnnotateResponses: cfg.RateLimit.Headers,
		Registry:          registry,
		Version:           Version,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	logger.Info("Starting flight change API",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Int64("rate_limit", cfg.RateLimit.Requests),
		zap.Duration("rate_limit_window", cfg.RateLimit.Window),
		zap.Stringer("failure_policy", policy),
	)
	return srv.Run(ctx)
}
