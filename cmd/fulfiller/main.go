package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-seckill-orders.git/internal/config"
	kafkax "github.com/ariefcatur/go-seckill-orders.git/internal/kafka"
	"github.com/ariefcatur/go-seckill-orders.git/internal/orders"
	"github.com/ariefcatur/go-seckill-orders.git/internal/postgres"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/ariefcatur/go-seckill-orders.git/internal/seckill"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.ServiceName+"-fulfiller"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Downstream events. Closed only after the worker has fully stopped, so
	// no publish can race the inbox shutdown.
	prod := kafkax.NewProducer(cfg.KafkaBrokers, kafkax.TopicOrderFulfilled, 1024, log)
	prod.Start()

	w := &seckill.Worker{
		Queue:     seckill.NewQueue(rdb, cfg.OrderStream, cfg.ConsumerGroup, cfg.ConsumerName, log),
		Store:     &orders.Repo{DB: db},
		Rdb:       rdb,
		Events:    &kafkax.EventPublisher{Producer: prod, Service: cfg.ServiceName + "-fulfiller"},
		Log:       log,
		ReadCount: int64(cfg.ReadCount),
		ReadBlock: cfg.ReadBlock,
	}

	done := make(chan error, 1)
	go func() {
		log.Info("fulfillment worker started",
			zap.String("stream", cfg.OrderStream),
			zap.String("group", cfg.ConsumerGroup),
			zap.String("consumer", cfg.ConsumerName))
		done <- w.Run(ctx)
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down worker")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("worker exit", zap.Error(err))
		}
	}
	prod.Close() // flush whatever is queued, then drain
	prod.WaitClosed()
}
