package seckill

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-seckill-orders.git/internal/cache"
	"github.com/ariefcatur/go-seckill-orders.git/internal/orders"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
)

// CachedCatalog is a read-through front for voucher sale-window lookups, so
// the admission hot path does not hit the record store per request. Missing
// vouchers are negative-cached.
type CachedCatalog struct {
	Cache *cache.Client
	Next  VoucherCatalog
}

func (c *CachedCatalog) GetSeckillVoucher(ctx context.Context, voucherID int64) (*orders.SeckillVoucher, error) {
	key := fmt.Sprintf(redisx.KeyVoucherCache, voucherID)
	v, err := cache.GetWithPassThrough(ctx, c.Cache, key, redisx.TTLVoucherCache,
		func(ctx context.Context) (*orders.SeckillVoucher, error) {
			return c.Next.GetSeckillVoucher(ctx, voucherID)
		})
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
