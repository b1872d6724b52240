package seckill

import "errors"

// Admission-time errors surface synchronously to the caller; fulfillment-time
// errors never do, they only drive the worker's recovery loop.
var (
	ErrVoucherNotFound   = errors.New("seckill: voucher not found")
	ErrSaleNotStarted    = errors.New("seckill: sale has not started")
	ErrSaleEnded         = errors.New("seckill: sale has ended")
	ErrStockExhausted    = errors.New("seckill: stock exhausted")
	ErrDuplicatePurchase = errors.New("seckill: already purchased")

	// ErrLockContention means another consumer holds the buyer's fulfillment
	// lock right now. Transient: the message stays pending and is retried.
	ErrLockContention = errors.New("seckill: buyer lock contended")
)
