// Package seckill is the flash-sale core: atomic admission against Redis, a
// durable stream queue, and the fulfillment worker that drains it.
package seckill

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/idgen"
	"github.com/ariefcatur/go-seckill-orders.git/internal/metrics"
	"github.com/ariefcatur/go-seckill-orders.git/internal/orders"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stock check, duplicate check, decrement, membership add and enqueue run as
// one script so no interleaving of concurrent admits can oversell or double
// book. Returns 0 accepted, 1 stock exhausted, 2 duplicate buyer.
var admitScript = redis.NewScript(`
local stockKey = KEYS[1]
local orderKey = KEYS[2]
local streamKey = KEYS[3]
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]

local stock = tonumber(redis.call("GET", stockKey))
if not stock or stock <= 0 then
  return 1
end
if redis.call("SISMEMBER", orderKey, userId) == 1 then
  return 2
end

redis.call("INCRBY", stockKey, -1)
redis.call("SADD", orderKey, userId)
redis.call("XADD", streamKey, "*",
  "v", "1", "orderId", orderId, "userId", userId, "voucherId", voucherId)
return 0
`)

// VoucherCatalog is the read-only slice of the catalog service the admission
// path needs: the sale window and initial stock.
type VoucherCatalog interface {
	GetSeckillVoucher(ctx context.Context, voucherID int64) (*orders.SeckillVoucher, error)
}

type Service struct {
	rdb     redis.UniversalClient
	ids     *idgen.Worker
	catalog VoucherCatalog
	stream  string
	log     *zap.Logger
	now     func() time.Time
}

func NewService(rdb redis.UniversalClient, ids *idgen.Worker, catalog VoucherCatalog, stream string, log *zap.Logger) *Service {
	return &Service{rdb: rdb, ids: ids, catalog: catalog, stream: stream, log: log, now: time.Now}
}

// Admit decides synchronously whether userID gets one unit of voucherID. On
// acceptance the ticket is already on the queue and the order id is returned
// without waiting for persistence.
func (s *Service) Admit(ctx context.Context, voucherID, userID int64) (int64, error) {
	v, err := s.catalog.GetSeckillVoucher(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, ErrVoucherNotFound
	}

	now := s.now()
	if now.Before(v.BeginTime) {
		metrics.Admissions.WithLabelValues("sale_not_started").Inc()
		return 0, ErrSaleNotStarted
	}
	if now.After(v.EndTime) {
		metrics.Admissions.WithLabelValues("sale_ended").Inc()
		return 0, ErrSaleEnded
	}

	orderID, err := s.ids.NextID(ctx, "order")
	if err != nil {
		return 0, err
	}

	keys := []string{
		fmt.Sprintf(redisx.KeySeckillStock, voucherID),
		fmt.Sprintf(redisx.KeySeckillOrder, voucherID),
		s.stream,
	}
	res, err := admitScript.Run(ctx, s.rdb, keys,
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10)).Int()
	if err != nil {
		return 0, fmt.Errorf("seckill: admit script: %w", err)
	}

	switch res {
	case 1:
		metrics.Admissions.WithLabelValues("stock_exhausted").Inc()
		s.log.Info("admission rejected: stock exhausted",
			zap.Int64("voucher_id", voucherID), zap.Int64("user_id", userID))
		return 0, ErrStockExhausted
	case 2:
		metrics.Admissions.WithLabelValues("duplicate_purchase").Inc()
		s.log.Info("admission rejected: duplicate purchase",
			zap.Int64("voucher_id", voucherID), zap.Int64("user_id", userID))
		return 0, ErrDuplicatePurchase
	}

	metrics.Admissions.WithLabelValues("accepted").Inc()
	return orderID, nil
}

// SeedStock publishes a voucher's remaining stock to the shared counter. The
// catalog service calls this when a seckill voucher goes live.
func (s *Service) SeedStock(ctx context.Context, voucherID int64, stock int) error {
	key := fmt.Sprintf(redisx.KeySeckillStock, voucherID)
	if err := s.rdb.Set(ctx, key, stock, 0).Err(); err != nil {
		return fmt.Errorf("seckill: seed stock %d: %w", voucherID, err)
	}
	return nil
}
