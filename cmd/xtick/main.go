package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"xtick/internal/infrastructure/config"
	"xtick/internal/infrastructure/logger"
	"xtick/internal/infrastructure/svc"

	"github.com/rs/zerolog/log"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer func() {
		if err := sc.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown finished with errors")
		}
	}()

	if sc.HTTP != nil {
		go func() {
			if err := sc.HTTP.Start(); err != nil {
				log.Error().Err(err).Msg("http api exited")
				stop()
			}
		}()
	}

	if err := sc.Registry.Start(); err != nil {
		log.Error().Err(err).Msg("registry start failed")
		return
	}

	log.Info().
		Str("config", *configPath).
		Strs("domestic", cfg.Symbols.Domestic).
		Strs("overseas", cfg.Symbols.Overseas).
		Int("print_every_min", cfg.App.PrintEveryMin).
		Msg("xtick started")

	if err := sc.Monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor service exited")
	}
}
