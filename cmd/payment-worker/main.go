package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cloudvps-middleware/internal/app"
	"cloudvps-middleware/internal/cache"
	"cloudvps-middleware/internal/kafka"
	"cloudvps-middleware/internal/payment"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Start(ctx, "payment-worker")
	if err != nil {
		panic("failed to start: " + err.Error())
	}
	defer rt.Shutdown(context.Background())
	cfg, log := rt.Config, rt.Log

	err = kafka.EnsureTopics(ctx, cfg.Kafka.Brokers[0], 3, 1, cfg.Kafka.PaymentTopic, cfg.Kafka.OrderTopic)
	if err != nil {
		log.Warn("failed to create topics", zap.Error(err))
	}

	// Reconcile republishes onto the payment topic; order outcomes go to the order topic.
	paymentEvents := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, rt.Metrics)
	defer paymentEvents.Close()
	orderEvents := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, rt.Metrics)
	defer orderEvents.Close()

	redis := rt.Redis()
	defer redis.Close()
	sessions := cache.NewSessionStore(redis, cfg.Redis.SessionTTL)

	uc := rt.PaymentUseCase(rt.HostBill(), sessions, paymentEvents)
	processor := payment.NewProcessor(uc, orderEvents)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, cfg.Kafka.GroupID,
		kafka.ConsumerOptions{}, log, rt.Metrics)
	defer consumer.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down payment-worker...")
		cancel()
	}()

	log.Info("payment-worker started",
		zap.String("payment_topic", cfg.Kafka.PaymentTopic),
		zap.String("order_topic", cfg.Kafka.OrderTopic),
		zap.String("group_id", cfg.Kafka.GroupID),
	)
	if err := consumer.Listen(ctx, processor.Handle); err != nil {
		log.Error("payment consumer error", zap.Error(err))
	}
}
