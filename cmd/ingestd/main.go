package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"ingestpipe/internal/bootstrap"
	"ingestpipe/internal/config"
	"ingestpipe/internal/httpapi"
	"ingestpipe/internal/intake"
	"ingestpipe/internal/observability"
	"ingestpipe/internal/query"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	observability.InitLogger("", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if shutdown, err := observability.InitOTel(context.Background(), cfg.Obs); err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
	} else if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect backends")
	}
	defer res.Close()

	gateway := intake.New(res.Tenants, res.Object, res.Receipts, res.Queue, res.Audit, res.Limiter, res.Scanner)
	querySvc := query.New(res.VectorResolver, cfg.Embedding, cfg.ImageEmbedding, res.Vision, res.Transcriber)
	server := httpapi.NewServer(gateway, querySvc, cfg.Auth)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("ingestd listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
