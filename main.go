package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/ecosort-bot/internal/bot"
	"github.com/raine/ecosort-bot/internal/config"
	"github.com/raine/ecosort-bot/internal/llm"
	"github.com/raine/ecosort-bot/internal/metrics"
	"github.com/raine/ecosort-bot/internal/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "ecosort-bot.log"

func fatal(format string, a ...any) {
	log.Error().Msg(fmt.Sprintf(format, a...))
	os.Exit(1)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()

	if missing := config.Missing(); len(missing) > 0 {
		fatal("missing required config: %s", strings.Join(missing, ", "))
	}
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid config: %v", err)
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fatal("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	if !cfg.TelegramEnabled() && !cfg.WebEnabled() {
		fatal("nothing to run: set BOT_TOKEN and/or WEB_ADDR")
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	classifier, err := llm.NewGeminiClassifier(ctx, llm.Config{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: cfg.GeminiTemperature,
		BaseURL:     cfg.GeminiBaseURL,
	})
	if err != nil {
		fatal("failed to initialize gemini classifier: %v", err)
	}
	log.Info().Str("model", classifier.Model()).Msg("gemini classifier initialized")

	metrics.Register()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.TelegramEnabled() {
		tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			fatal("failed to initialize telegram bot: %v", err)
		}
		tg.Debug = false
		log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

		// Register bot commands for Telegram's command menu
		bot.RegisterCommands(tg)

		b := bot.NewBot(tg, classifier, bot.Options{
			AllowedChatIDs:  cfg.AllowedChatIDs,
			ClassifyTimeout: cfg.RequestTimeout,
			Observer:        metrics.Observe("telegram"),
		})
		g.Go(func() error {
			return runBot(ctx, tg, b)
		})
	}

	if cfg.WebEnabled() {
		server := web.NewServer(classifier, web.Options{
			ClassifyTimeout: cfg.RequestTimeout,
			Observer:        metrics.Observe("web"),
		})
		g.Go(func() error {
			return server.Run(ctx, cfg.WebAddr)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup
	defer b.Shutdown()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
