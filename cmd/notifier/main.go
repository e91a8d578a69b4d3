package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tazhibayda/learnpath-auth/internal/config"
	applog "github.com/tazhibayda/learnpath-auth/internal/log"
	"github.com/tazhibayda/learnpath-auth/internal/mail"
	"github.com/tazhibayda/learnpath-auth/internal/queue"
	"go.uber.org/zap"
)

// notifier drains queued mail from RabbitMQ and delivers it over SMTP.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	lg, err := applog.Init(cfg.IsProduction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	cons, err := queue.NewConsumer(cfg.RabbitURL, queue.Binding{
		Exchange: cfg.RabbitExchange,
		Queue:    cfg.RabbitMailQueue,
		Key:      cfg.RabbitMailKey,
	}, lg)
	if err != nil {
		lg.Fatal("rabbit consumer init failed", zap.Error(err))
	}
	defer cons.Close()

	var sender mail.Sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	if cfg.SMTPUser == "" && !cfg.IsProduction {
		sender = mail.NewLogSender(lg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Info("notifier up",
		zap.String("exchange", cfg.RabbitExchange),
		zap.String("queue", cfg.RabbitMailQueue),
		zap.String("key", cfg.RabbitMailKey),
		zap.Int("workers", cfg.NotifierConcurrency))

	handle := mail.DeliveryHandler(sender, func(err error) {
		lg.Warn("dropping undecodable mail message", zap.Error(err))
	})
	if err := cons.Consume(ctx, cfg.NotifierConcurrency, handle); err != nil && !errors.Is(err, context.Canceled) {
		lg.Fatal("consumer stopped", zap.Error(err))
	}
	lg.Info("notifier stopped")
}
