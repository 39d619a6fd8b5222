package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	tele "gopkg.in/telebot.v4"

	"pulsebot/internal/bot"
	"pulsebot/internal/chat"
	"pulsebot/internal/cleanup"
	"pulsebot/internal/config"
	"pulsebot/internal/deliver"
	"pulsebot/internal/logging"
	"pulsebot/internal/pause"
	"pulsebot/internal/poller"
	"pulsebot/internal/pulse"
	"pulsebot/internal/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	manager := config.NewManager(cfgPath, cfg, log)

	store, err := storage.Open(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer store.Close()

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return err
	}

	messenger := chat.NewTelegram(tb, cfg.Telegram.RatePerSec, log)
	client := pulse.NewClient(cfg.Pulse.Timeout, log)
	breaker := pause.NewManager(store, client, messenger, cfg.Breaker, log)
	deliverer := deliver.New(store, messenger, log)
	loop := poller.New(store, client, breaker, deliverer, manager.Get, log)

	bot.Register(tb, bot.NewHandlers(store, breaker, client, log))

	jobs, err := cleanup.New(store, log)
	if err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	go func() {
		if err := manager.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("config watch unavailable")
		}
	}()

	go func() {
		<-ctx.Done()
		tb.Stop()
	}()
	go tb.Start()

	log.Info().Str("config", cfgPath).Msg("pulsebot started")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	err = loop.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info().Msg("pulsebot stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
