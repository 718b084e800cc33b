package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventbot/bot"
	"eventbot/config"
	"eventbot/db"
	"eventbot/logger"
	"eventbot/scheduler"
)

func main() {
	log := logger.New("eventbot")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Connect(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to disconnect from database")
		}
	}()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create telegram client")
	}
	log.Info().Str("username", api.Self.UserName).Msg("authorized")

	scanner := scheduler.New(store, api, log)
	if err := scanner.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start reminder scanner")
	}
	defer scanner.Stop()

	b := bot.New(api, store, log)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bot stopped")
		os.Exit(1)
	}
	log.Info().Msg("shutting down")
}
