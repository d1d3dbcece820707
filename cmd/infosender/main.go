// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Infosender polls RSS feeds and republishes fresh entries to a Telegram
// channel, optionally rewriting the text with YandexGPT and rendering the
// headline onto a template image. A single owner controls it through bot
// commands.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Termos47/info-sender/internal/bot"
	"github.com/Termos47/info-sender/internal/config"
	"github.com/Termos47/info-sender/internal/controller"
	"github.com/Termos47/info-sender/internal/feed"
	"github.com/Termos47/info-sender/internal/imggen"
	"github.com/Termos47/info-sender/internal/poster"
	"github.com/Termos47/info-sender/internal/seen"
	"github.com/Termos47/info-sender/internal/yagpt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// A local .env is a convenience, not a requirement.
	godotenv.Load()

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return err
	}

	log := newLogger(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(log)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return err
	}

	var enhancer controller.Enhancer
	if cfg.EnhancerEnabled() {
		enhancer = yagpt.New(cfg.YandexAPIKey, cfg.YandexFolderID)
		log.Info("text enhancement enabled", "folder", cfg.YandexFolderID)
	} else {
		log.Info("text enhancement disabled")
	}

	var renderer *imggen.Generator
	if cfg.EnableImages {
		renderer, err = imggen.New(imggen.Options{
			TemplatesDir:    cfg.TemplatesDir,
			FontsDir:        cfg.FontsDir,
			OutputDir:       cfg.OutputDir,
			DefaultFont:     cfg.DefaultFont,
			TextColor:       cfg.TextColor,
			StrokeColor:     cfg.StrokeColor,
			Background:      cfg.Background,
			StrokeWidth:     cfg.StrokeWidth,
			MaxLines:        cfg.MaxLines,
			TextAreaWidth:   cfg.TextAreaWidth,
			PositionX:       cfg.TextPositionX,
			PositionY:       cfg.TextPositionY,
			OffsetX:         cfg.TextOffsetX,
			OffsetY:         cfg.TextOffsetY,
			FontSizeRatio:   cfg.FontSizeRatio,
			LineHeightRatio: cfg.LineHeightRatio,
		})
		if err != nil {
			return err
		}
	}

	notifier := bot.NewNotifier(api, cfg.OwnerID, log)

	deps := controller.Deps{
		Aggregator: &feed.Aggregator{
			FreshWindow:    cfg.FreshWindow,
			IncludeUndated: cfg.IncludeUndated,
			MaxPerFeed:     cfg.MaxPerFeed,
		},
		Enhancer:  enhancer,
		Publisher: poster.New(api, cfg.ChannelID, log),
		Store:     seen.New(cfg.HistoryFile, cfg.MaxHistory),
		Notifier:  notifier,
		Log:       log,
	}
	if renderer != nil {
		deps.Renderer = renderer
	}

	ctrl := controller.New(controller.Config{
		Sources:       cfg.FeedURLs,
		CheckInterval: cfg.CheckInterval,
		PostDelay:     cfg.PostDelay,
	}, deps)

	opts := bot.Options{
		OwnerID:    cfg.OwnerID,
		Channel:    cfg.ChannelID,
		EnhancerOn: cfg.EnhancerEnabled(),
		Log:        log,
	}
	if renderer != nil {
		opts.Renderer = renderer
	}
	b := bot.New(api, ctrl, opts)

	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutting down")
	return nil
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
