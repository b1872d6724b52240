package redisx

import "time"

const (
	// Seckill stock counter: seckill:stock:{voucher_id} -> remaining units
	KeySeckillStock = "seckill:stock:%d"

	// Buyers holding a reservation: seckill:order:{voucher_id} (set of user ids)
	KeySeckillOrder = "seckill:order:%d"

	// Durable order queue (stream, consumer-group read)
	KeyOrderStream = "stream.orders"

	// Per-buyer fulfillment lock: lock:order:{user_id}
	KeyOrderLock = "lock:order:%d"

	// Daily id sequence: icr:{domain}:{yyyy:MM:dd}
	KeyIDSequence = "icr:%s:%s"

	// Shop cache: cache:shop:{shop_id}
	KeyShopCache = "cache:shop:%d"

	// Seckill voucher cache: cache:voucher:seckill:{voucher_id}
	KeyVoucherCache = "cache:voucher:seckill:%d"

	// Cache rebuild mutex: cache:lock:{cache_key}
	KeyCacheLock = "cache:lock:%s"
)

var (
	TTLShopCache    = 30 * time.Minute
	TTLVoucherCache = 10 * time.Minute
	TTLNullCache    = 2 * time.Minute

	// Lease durations; locks expire on their own if the holder dies.
	TTLOrderLock = 10 * time.Second
	TTLCacheLock = 10 * time.Second
)
