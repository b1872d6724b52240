package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ShopRepo struct{ DB *pgxpool.Pool }

func (r *ShopRepo) GetByID(ctx context.Context, id int64) (*Shop, error) {
	var s Shop
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, address, avg_price, score, created_at, updated_at
		FROM shops WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.Address, &s.AvgPrice, &s.Score, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shop %d: %w", id, err)
	}
	return &s, nil
}

func (r *ShopRepo) Update(ctx context.Context, s *Shop) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE shops SET name=$2, address=$3, avg_price=$4, score=$5, updated_at=now()
		WHERE id=$1`, s.ID, s.Name, s.Address, s.AvgPrice, s.Score)
	if err != nil {
		return fmt.Errorf("update shop %d: %w", s.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update shop %d: not found", s.ID)
	}
	return nil
}
