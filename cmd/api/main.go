package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	"github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-order-fulfillment/internal/httpx"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", cfg.ServiceName)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	pool, err := postgres.Connect(ctx, postgres.Options{
		DSN:            cfg.PostgresDSN,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Error("migrate", "err", err)
			os.Exit(1)
		}
	}
	store := &postgres.Store{Pool: pool}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, log)
	prod.Start(ctx)

	// Service & handler
	catalog := inventory.Catalog{}
	products := inventory.NewCachedCatalog(rdb, func(ctx context.Context) ([]orders.Product, error) {
		return catalog.ListProducts(ctx, store)
	}, cfg.ProductCacheTTL, log)

	svc := fulfillment.NewService(fulfillment.Deps{
		DB:       store,
		Ledger:   inventory.Ledger{},
		Repo:     orders.Repo{},
		Payments: payment.Simulator{},
		Products: products,
		Events:   prod,
		Views:    fulfillment.NewRedisViews(rdb, cfg.OrderCacheTTL, log),
		Service:  cfg.ServiceName,
		Log:      log,
	})

	router := httpx.NewRouter(store, log)
	(&httpx.OrdersHandler{Orders: svc, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			cancel()
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
}
