package invoicing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidebooks/tidebooks/internal/ledger"
	"github.com/tidebooks/tidebooks/internal/platform/db"
)

// Repository persists invoices in PostgreSQL.
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

func (r *txRepo) InsertInvoice(ctx context.Context, inv *Invoice) error {
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (company_id, number, sequence_value, series_code, period, kind, party_id, mode, issued_at, sub_total, discount, grand_total, paid_amount, due_amount, remark, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17) RETURNING id`,
		inv.CompanyID, inv.Number, inv.Sequence, inv.SeriesCode, inv.Period,
		string(inv.Kind), inv.PartyID, inv.Mode, inv.IssuedAt,
		inv.SubTotal, inv.Discount, inv.GrandTotal, inv.PaidAmount, inv.DueAmount, inv.Remark,
		inv.CreatedAt, inv.UpdatedAt).Scan(&inv.ID)
	if err != nil {
		return err
	}
	return r.insertLines(ctx, inv)
}

// UpdateInvoice rewrites the document row and replaces its lines.
func (r *txRepo) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices
SET party_id=$1, mode=$2, issued_at=$3, sub_total=$4, discount=$5, grand_total=$6, paid_amount=$7, due_amount=$8, remark=$9, updated_at=NOW()
WHERE company_id=$10 AND id=$11`,
		inv.PartyID, inv.Mode, inv.IssuedAt, inv.SubTotal, inv.Discount, inv.GrandTotal,
		inv.PaidAmount, inv.DueAmount, inv.Remark, inv.CompanyID, inv.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id=$1`, inv.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, inv)
}

func (r *txRepo) insertLines(ctx context.Context, inv *Invoice) error {
	for i := range inv.Lines {
		line := &inv.Lines[i]
		line.InvoiceID = inv.ID
		err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, item_id, description, qty, rate, amount)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			line.InvoiceID, line.ItemID, line.Description, line.Qty, line.Rate, line.Amount).Scan(&line.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) DeleteInvoice(ctx context.Context, companyID string, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (company_id, party_id, entry_date, kind, debit, credit, ref_kind, ref_id, memo, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING id`,
		entry.CompanyID, entry.PartyID, entry.EntryDate, string(entry.Kind),
		entry.Debit, entry.Credit, entry.RefKind, entry.RefID, entry.Memo).Scan(&id)
	return id, err
}

func (r *txRepo) DeleteLedgerEntriesForRef(ctx context.Context, companyID, refKind string, refID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM ledger_entries WHERE company_id=$1 AND ref_kind=$2 AND ref_id=$3`, companyID, refKind, refID)
	return err
}

// GetInvoice fetches an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, companyID string, id int64) (*Invoice, error) {
	var inv Invoice
	var kind string
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, number, sequence_value, series_code, period, kind, party_id, mode, issued_at, sub_total, discount, grand_total, paid_amount, due_amount, remark, created_at, updated_at
FROM invoices WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&inv.ID, &inv.CompanyID, &inv.Number, &inv.Sequence, &inv.SeriesCode, &inv.Period,
			&kind, &inv.PartyID, &inv.Mode, &inv.IssuedAt,
			&inv.SubTotal, &inv.Discount, &inv.GrandTotal, &inv.PaidAmount, &inv.DueAmount, &inv.Remark,
			&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	inv.Kind = InvoiceKind(kind)

	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, item_id, description, qty, rate, amount
FROM invoice_lines WHERE invoice_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ItemID, &line.Description, &line.Qty, &line.Rate, &line.Amount); err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return &inv, rows.Err()
}

// ListInvoices returns invoice headers newest first.
func (r *Repository) ListInvoices(ctx context.Context, companyID string, filter InvoiceFilter) ([]Invoice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, number, sequence_value, series_code, period, kind, party_id, mode, issued_at, sub_total, discount, grand_total, paid_amount, due_amount, remark, created_at, updated_at
FROM invoices
WHERE company_id = $1
  AND ($2::text = '' OR kind = $2)
  AND ($3::text = '' OR party_id = $3)
  AND ($4::timestamptz IS NULL OR issued_at >= $4)
  AND ($5::timestamptz IS NULL OR issued_at <= $5)
ORDER BY issued_at DESC, id DESC
LIMIT $6`, companyID, string(filter.Kind), filter.PartyID, nullableTime(filter.From), nullableTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		var kind string
		if err := rows.Scan(&inv.ID, &inv.CompanyID, &inv.Number, &inv.Sequence, &inv.SeriesCode, &inv.Period,
			&kind, &inv.PartyID, &inv.Mode, &inv.IssuedAt,
			&inv.SubTotal, &inv.Discount, &inv.GrandTotal, &inv.PaidAmount, &inv.DueAmount, &inv.Remark,
			&inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		inv.Kind = InvoiceKind(kind)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
