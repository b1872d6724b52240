package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// GetSeckillVoucher returns nil without error when the voucher does not
// exist, so cache fallbacks can turn it into a negative entry.
func (r *Repo) GetSeckillVoucher(ctx context.Context, voucherID int64) (*SeckillVoucher, error) {
	var v SeckillVoucher
	err := r.DB.QueryRow(ctx, `
		SELECT voucher_id, stock, begin_time, end_time
		FROM seckill_vouchers WHERE voucher_id=$1`, voucherID).
		Scan(&v.VoucherID, &v.Stock, &v.BeginTime, &v.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get seckill voucher %d: %w", voucherID, err)
	}
	return &v, nil
}

// ReserveStock decrements the persisted stock column only while it is
// positive. Second line of defense against oversell, independent of the
// Redis counter.
func (r *Repo) ReserveStock(ctx context.Context, voucherID int64) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE seckill_vouchers SET stock = stock - 1
		WHERE voucher_id=$1 AND stock > 0`, voucherID)
	if err != nil {
		return false, fmt.Errorf("reserve stock %d: %w", voucherID, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) InsertOrder(ctx context.Context, o *VoucherOrder) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO voucher_orders(id, user_id, voucher_id)
		VALUES ($1, $2, $3)`, o.ID, o.UserID, o.VoucherID)
	if err != nil {
		return fmt.Errorf("insert order %d: %w", o.ID, err)
	}
	return nil
}

// ExistsOrder answers "did this buyer already buy this voucher" from the
// source of truth rather than the Redis fast path.
func (r *Repo) ExistsOrder(ctx context.Context, userID, voucherID int64) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM voucher_orders WHERE user_id=$1 AND voucher_id=$2)`,
		userID, voucherID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("order exists user=%d voucher=%d: %w", userID, voucherID, err)
	}
	return exists, nil
}
