package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/planbok/playground/internal/config"
	"github.com/planbok/playground/internal/custody"
	"github.com/planbok/playground/internal/utils/logger"
	"github.com/planbok/playground/pkg/server"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting verification server...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	var opts []server.Option
	if !config.IsProduction(cfg.Environment) {
		opts = append(opts, server.WithStackTraces())
	}
	if cfg.CustodyEnvConfig.Enabled() {
		c, err := custody.NewClient(&cfg.CustodyEnvConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init custody client")
		}
		opts = append(opts,
			server.WithCustody(c),
			server.WithWebhookVerifier(custody.NewOrgKeyCache(c, cfg.CustodyKeyRefresh)),
		)
		log.Info().Str("url", c.BaseURL).Msg("Custody API enabled")
	} else {
		log.Info().Msg("Custody API not configured, custody routes disabled")
	}

	s := server.NewServer(&cfg.ServerEnvConfig, opts...)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received, stopping server")
		if err := s.Shutdown(); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
	log.Info().Msg("server stopped")
}
