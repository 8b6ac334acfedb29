// Package main is the entry point for the booking bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/calcom"
	"github.com/telecalbot/telecalbot/internal/config"
	"github.com/telecalbot/telecalbot/internal/conversation"
	"github.com/telecalbot/telecalbot/internal/handler"
	"github.com/telecalbot/telecalbot/internal/ops"
	"github.com/telecalbot/telecalbot/internal/store"
	"github.com/telecalbot/telecalbot/internal/telegram"
	"github.com/telecalbot/telecalbot/pkg/logger"
	"github.com/telecalbot/telecalbot/pkg/tracing"
)

func main() {
	// Load .env in local development; absence is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	log.Info("starting booking bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "telecalbot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		log.Error("failed to apply schema", zap.Error(err))
		os.Exit(1)
	}

	calcomClient, err := calcom.New(calcom.Config{
		BaseURL:    cfg.CalcomBaseURL,
		APIKey:     cfg.CalcomAPIKey,
		APIVersion: cfg.CalcomAPIVersion,
		CacheTTL:   cfg.AvailabilityCacheTTL,
		Timeout:    cfg.CalcomHTTPTimeout,
		Logger:     log,
	})
	if err != nil {
		log.Error("failed to create cal.com client", zap.Error(err))
		os.Exit(1)
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("failed to connect to telegram", zap.Error(err))
		os.Exit(1)
	}

	sender := telegram.NewSender(api, log)
	whitelist := store.NewWhitelistStore(db)
	requests := store.NewAccessRequestStore(db)
	limits := store.NewDurationLimitStore(db)
	bookings := store.NewBookingStore(db)

	manager := conversation.NewManager(conversation.Config{
		API:         calcomClient,
		Messenger:   sender,
		EventTypes:  cfg,
		Limits:      limits,
		Records:     bookings,
		IdleTimeout: cfg.BookingTimeout,
		Logger:      log,
	})

	handlers := handler.New(handler.Config{
		AdminID:   cfg.AdminTelegramID,
		Whitelist: whitelist,
		Requests:  requests,
		Limits:    limits,
		Bookings:  bookings,
		Scheduler: calcomClient,
		Conv:      manager,
		Messenger: sender,
		Logger:    log,
	})

	bot := telegram.New(telegram.Config{
		API:      api,
		Handlers: handlers,
		Conv:     manager,
		AdminID:  cfg.AdminTelegramID,
		Logger:   log,
	})

	opsServer := ops.New(cfg.OpsPort, db, log)

	errCh := make(chan error, 2)
	go func() { errCh <- bot.Run(ctx) }()
	go func() { errCh <- opsServer.Run(ctx) }()

	// A failing component triggers the same shutdown path as a signal.
	for received := 0; received < 2; {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			for ; received < 2; received++ {
				if err := <-errCh; err != nil {
					log.Error("component failed", zap.Error(err))
				}
			}
		case err := <-errCh:
			received++
			if err != nil {
				log.Error("component failed", zap.Error(err))
			}
			stop()
		}
	}

	log.Info("bot stopped")
}
