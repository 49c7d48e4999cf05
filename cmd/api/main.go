package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"influencegen/internal/api"
	"influencegen/internal/backend"
	"influencegen/internal/buildinfo"
	"influencegen/internal/config"
	"influencegen/internal/log"
	"influencegen/internal/webhooks"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		base := log.Base()
		base.Fatal().Err(err).Msg("load config")
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "influencegen-api"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("main")

	b, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn().Err(err).Msg("close backends")
		}
	}()

	srv := api.NewServer(cfg, b.Store, b.Params, b.Broker)
	if b.Redis != nil {
		srv.AddReadinessCheck("redis", func(ctx context.Context) error { return b.Redis.Ping(ctx).Err() })
	}

	worker := webhooks.NewWorker(b.Store, b.Params, srv.Processor, cfg.Namespace, cfg.Webhook)
	worker.Start()
	defer worker.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("version", buildinfo.Version).
			Str("callback_path", srv.CallbackPath()).
			Str("signature_header", srv.Callbacks.Header()).
			Msg("API listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
