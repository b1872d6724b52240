package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/cache"
	"github.com/ariefcatur/go-seckill-orders.git/internal/config"
	"github.com/ariefcatur/go-seckill-orders.git/internal/httpx"
	"github.com/ariefcatur/go-seckill-orders.git/internal/idgen"
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
	log = log.With(zap.String("service", cfg.ServiceName))

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

	// Admission: cached sale-window reads in front of the catalog rows.
	repo := &orders.Repo{DB: db}
	cacheClient := cache.New(rdb, log)
	catalog := &seckill.CachedCatalog{Cache: cacheClient, Next: repo}
	svc := seckill.NewService(rdb, idgen.New(rdb), catalog, cfg.OrderStream, log)

	router := httpx.NewRouter()
	(&httpx.SeckillHandler{Service: svc, Log: log}).Register(router)
	(&httpx.ShopHandler{Cache: cacheClient, Repo: &orders.ShopRepo{DB: db}, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}
