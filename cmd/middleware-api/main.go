package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudvps-middleware/internal/app"
	"cloudvps-middleware/internal/cache"
	"cloudvps-middleware/internal/catalog"
	"cloudvps-middleware/internal/kafka"
	"cloudvps-middleware/internal/order"
	"cloudvps-middleware/internal/payment"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Start(ctx, "middleware-api")
	if err != nil {
		panic("failed to start: " + err.Error())
	}
	defer rt.Shutdown(context.Background())
	cfg, log := rt.Config, rt.Log

	mapping, err := catalog.LoadMapping(cfg.Catalog.MappingFile)
	if err != nil {
		log.Fatal("failed to load catalog mapping", zap.Error(err))
	}

	if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers[0], 3, 1, cfg.Kafka.PaymentTopic); err != nil {
		log.Warn("failed to create payment topic", zap.Error(err))
	}
	events := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, rt.Metrics)
	defer events.Close()

	redis := rt.Redis()
	defer redis.Close()
	if err := redis.Ping(ctx); err != nil {
		log.Warn("redis is not reachable yet", zap.Error(err))
	}
	sessions := cache.NewSessionStore(redis, cfg.Redis.SessionTTL)

	hb := rt.HostBill()
	catalogService := catalog.NewService(mapping, hb, redis, cfg.Redis.CatalogTTL, log, rt.Tracer)
	orderUC := order.NewUseCase(hb, mapping, rt.GatewayModules(), rt.Metrics, log, rt.Tracer)
	paymentUC := rt.PaymentUseCase(hb, sessions, events)

	server := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	server.Use(recover.New())
	server.Use(requestid.New())
	server.Use(otelfiber.Middleware())

	server.Get("/health", func(c *fiber.Ctx) error {
		redisStatus := "ok"
		if err := redis.Ping(c.UserContext()); err != nil {
			redisStatus = "unavailable"
		}
		return c.JSON(fiber.Map{"status": "ok", "redis": redisStatus})
	})

	catalog.NewController(catalogService, log, rt.Tracer).Register(server)
	order.NewController(orderUC, log, rt.Tracer).Register(server)
	payment.NewController(paymentUC, log, rt.Tracer).Register(server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down middleware-api...")
		_ = server.ShutdownWithTimeout(10 * time.Second)
		cancel()
	}()

	log.Info("middleware-api listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("hostbill", cfg.HostBill.BaseURL),
		zap.Int("catalog_entries", len(mapping.Entries())),
	)
	if err := server.Listen(cfg.HTTPAddr); err != nil {
		log.Error("server error", zap.Error(err))
	}
}
