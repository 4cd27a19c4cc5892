package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// AdjustOnHand applies the delta as a single conditional UPDATE. The guard
// `on_hand + delta >= 0` sits in the statement itself, so two concurrent
// decreases serialise on the row and the loser sees no matching row.
func (r *txRepo) AdjustOnHand(ctx context.Context, companyID string, itemID int64, delta decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var prev, next decimal.Decimal
	err := r.tx.QueryRow(ctx, `UPDATE items
SET on_hand = on_hand + $1, updated_at = NOW()
WHERE company_id = $2 AND id = $3 AND on_hand + $1 >= 0
RETURNING on_hand - $1, on_hand`, delta, companyID, itemID).Scan(&prev, &next)
	if err == nil {
		return prev, next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, decimal.Zero, err
	}
	// Guard failed or item missing; disambiguate for the caller.
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE company_id=$1 AND id=$2)`, companyID, itemID).Scan(&exists); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, decimal.Zero, ErrItemNotFound
	}
	return decimal.Zero, decimal.Zero, ErrInsufficientStock
}

func (r *txRepo) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (company_id, item_id, delta, kind, ref_kind, ref_id, prev_qty, new_qty, moved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		movement.CompanyID, movement.ItemID, movement.Delta, string(movement.Kind), movement.RefKind, movement.RefID, movement.PrevQty, movement.NewQty, movement.MovedAt).Scan(&id)
	return id, err
}

// InsertOrphanMovement appends a movement row outside any item update, used
// when the item master has been deleted but the audit trail must survive.
func (r *Repository) InsertOrphanMovement(ctx context.Context, movement Movement) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_movements (company_id, item_id, delta, kind, ref_kind, ref_id, prev_qty, new_qty, moved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		movement.CompanyID, movement.ItemID, movement.Delta, string(movement.Kind), movement.RefKind, movement.RefID, movement.PrevQty, movement.NewQty, movement.MovedAt)
	return err
}

// CreateItem inserts an item row.
func (r *Repository) CreateItem(ctx context.Context, item Item) (*Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO items (company_id, sku, name, unit, on_hand, purchase_rate, sales_rate, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		item.CompanyID, item.SKU, item.Name, item.Unit, item.OnHand, item.PurchaseRate, item.SalesRate, item.CreatedAt, item.UpdatedAt).Scan(&item.ID)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem fetches an item scoped to a company.
func (r *Repository) GetItem(ctx context.Context, companyID string, id int64) (*Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, sku, name, unit, on_hand, purchase_rate, sales_rate, created_at, updated_at
FROM items WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&item.ID, &item.CompanyID, &item.SKU, &item.Name, &item.Unit, &item.OnHand, &item.PurchaseRate, &item.SalesRate, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListItems returns all items for a company.
func (r *Repository) ListItems(ctx context.Context, companyID string) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, sku, name, unit, on_hand, purchase_rate, sales_rate, created_at, updated_at
FROM items WHERE company_id=$1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.SKU, &item.Name, &item.Unit, &item.OnHand, &item.PurchaseRate, &item.SalesRate, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListMovements returns movement rows newest first.
func (r *Repository) ListMovements(ctx context.Context, companyID string, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, item_id, delta, kind, ref_kind, ref_id, prev_qty, new_qty, moved_at
FROM stock_movements
WHERE company_id = $1
  AND ($2::bigint = 0 OR item_id = $2)
  AND ($3::timestamptz IS NULL OR moved_at >= $3)
  AND ($4::timestamptz IS NULL OR moved_at <= $4)
ORDER BY moved_at DESC, id DESC
LIMIT $5`, companyID, filter.ItemID, nullableTime(filter.From), nullableTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ItemID, &m.Delta, &m.Kind, &m.RefKind, &m.RefID, &m.PrevQty, &m.NewQty, &m.MovedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
