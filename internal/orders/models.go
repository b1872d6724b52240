package orders

import "time"

// VoucherOrder is the durable record of one accepted purchase; at most one
// exists per (user, voucher) pair.
type VoucherOrder struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	VoucherID int64     `json:"voucher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SeckillVoucher carries the sale window and the persisted stock column. The
// core reads it; the catalog service owns it.
type SeckillVoucher struct {
	VoucherID int64     `json:"voucher_id"`
	Stock     int       `json:"stock"`
	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`
}

type Shop struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	AvgPrice  int       `json:"avg_price"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
