package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/projector"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", cfg.ServiceName+"-projector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis ping", "err", err)
		os.Exit(1)
	}

	svc := projector.NewService(rdb, log)

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicOrderLifecycle, cfg.ProjectorWorkers, log)
	log.Info("projector consumer started", "group", cfg.ProjectorGroup, "topic", orders.TopicOrderLifecycle, "workers", cfg.ProjectorWorkers)

	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		log.Error("consumer exit", "err", err)
		os.Exit(1)
	}
	log.Info("projector stopped")
}
