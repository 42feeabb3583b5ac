package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudvps-middleware/internal/app"
	"cloudvps-middleware/internal/cache"
	"cloudvps-middleware/internal/kafka"
	"cloudvps-middleware/internal/payment"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Start(ctx, "invoice-poller")
	if err != nil {
		panic("failed to start: " + err.Error())
	}
	defer rt.Shutdown(context.Background())
	cfg, log := rt.Config, rt.Log

	if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers[0], 3, 1, cfg.Kafka.PaymentTopic); err != nil {
		log.Warn("failed to create payment topic", zap.Error(err))
	}
	events := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, rt.Metrics)
	defer events.Close()

	redis := rt.Redis()
	defer redis.Close()
	sessions := cache.NewSessionStore(redis, cfg.Redis.SessionTTL)
	uc := rt.PaymentUseCase(rt.HostBill(), sessions, events)

	// A paid session is normally captured within one poll cycle.
	opts := payment.ReconcileOptions{
		MaxAge:     cfg.Poller.MaxAge,
		StaleAfter: 4 * cfg.Poller.Interval,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down invoice-poller...")
		cancel()
	}()

	log.Info("invoice-poller started",
		zap.Duration("interval", cfg.Poller.Interval),
		zap.Duration("max_age", opts.MaxAge),
		zap.Duration("stale_after", opts.StaleAfter),
	)

	ticker := time.NewTicker(cfg.Poller.Interval)
	defer ticker.Stop()
	for {
		stats, err := uc.Reconcile(ctx, opts)
		if err != nil && ctx.Err() == nil {
			log.Error("reconcile failed", zap.Error(err))
		} else if stats.Checked > 0 {
			log.Info("reconcile pass",
				zap.Int("checked", stats.Checked),
				zap.Int("republished", stats.Republished),
				zap.Int("cancelled", stats.Cancelled),
				zap.Int("errors", stats.Errors),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
