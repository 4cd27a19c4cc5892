package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/ledger"
	"github.com/tidebooks/tidebooks/internal/platform/db"
)

// Repository persists payments in PostgreSQL.
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

func (r *txRepo) InsertPayment(ctx context.Context, p *Payment) error {
	return r.tx.QueryRow(ctx, `INSERT INTO payments (company_id, number, sequence_value, series_code, period, kind, party_id, mode, amount, paid_at, remark, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		p.CompanyID, p.Number, p.Sequence, p.SeriesCode, p.Period,
		string(p.Kind), p.PartyID, p.Mode, p.Amount, p.PaidAt, p.Remark, p.CreatedAt).Scan(&p.ID)
}

func (r *txRepo) DeletePayment(ctx context.Context, companyID string, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM payments WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepo) InsertAllocation(ctx context.Context, alloc *Allocation) error {
	return r.tx.QueryRow(ctx, `INSERT INTO payment_allocations (payment_id, invoice_id, amount, created_at)
VALUES ($1, $2, $3, $4) RETURNING id`,
		alloc.PaymentID, alloc.InvoiceID, alloc.Amount, alloc.CreatedAt).Scan(&alloc.ID)
}

func (r *txRepo) DeleteAllocation(ctx context.Context, paymentID, allocationID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM payment_allocations WHERE payment_id=$1 AND id=$2`, paymentID, allocationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAllocationNotFound
	}
	return nil
}

func (r *txRepo) DeleteAllocationsForPayment(ctx context.Context, paymentID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM payment_allocations WHERE payment_id=$1`, paymentID)
	return err
}

// ListOpenInvoices returns open invoices oldest first for auto allocation.
// Rows are locked so a concurrent payment cannot allocate the same due.
func (r *txRepo) ListOpenInvoices(ctx context.Context, companyID, partyID, kind string) ([]InvoiceSummary, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, party_id, kind, due_amount, issued_at
FROM invoices
WHERE company_id=$1 AND party_id=$2 AND kind=$3 AND due_amount > 0
ORDER BY issued_at, id
FOR UPDATE`, companyID, partyID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InvoiceSummary
	for rows.Next() {
		var inv InvoiceSummary
		if err := rows.Scan(&inv.ID, &inv.PartyID, &inv.Kind, &inv.Due, &inv.IssuedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ApplyToInvoice shifts paid_amount by delta in one conditional statement.
// A positive delta requires at least that much remaining due; negative
// deltas floor the paid amount at zero. Due is rederived from the totals.
func (r *txRepo) ApplyToInvoice(ctx context.Context, companyID string, invoiceID int64, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices
SET paid_amount = GREATEST(paid_amount + $1, 0),
    due_amount  = GREATEST(grand_total - GREATEST(paid_amount + $1, 0), 0),
    updated_at  = NOW()
WHERE company_id = $2 AND id = $3 AND ($1 <= 0 OR due_amount >= $1)`, delta, companyID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE company_id=$1 AND id=$2)`, companyID, invoiceID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrInvoiceNotFound
	}
	return ErrAllocationExceedsDue
}

func (r *txRepo) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (company_id, party_id, entry_date, kind, debit, credit, ref_kind, ref_id, memo, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING id`,
		entry.CompanyID, entry.PartyID, entry.EntryDate, string(entry.Kind),
		entry.Debit, entry.Credit, entry.RefKind, entry.RefID, entry.Memo).Scan(&id)
	return id, err
}

// GetPayment fetches a payment with its allocations.
func (r *Repository) GetPayment(ctx context.Context, companyID string, id int64) (*Payment, error) {
	var p Payment
	var kind string
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, number, sequence_value, series_code, period, kind, party_id, mode, amount, paid_at, remark, created_at
FROM payments WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&p.ID, &p.CompanyID, &p.Number, &p.Sequence, &p.SeriesCode, &p.Period,
			&kind, &p.PartyID, &p.Mode, &p.Amount, &p.PaidAt, &p.Remark, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	p.Kind = PaymentKind(kind)

	rows, err := r.pool.Query(ctx, `SELECT id, payment_id, invoice_id, amount, created_at
FROM payment_allocations WHERE payment_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		p.Allocations = append(p.Allocations, a)
	}
	return &p, rows.Err()
}

// ListPayments returns payment headers newest first.
func (r *Repository) ListPayments(ctx context.Context, companyID string, filter PaymentFilter) ([]Payment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, number, sequence_value, series_code, period, kind, party_id, mode, amount, paid_at, remark, created_at
FROM payments
WHERE company_id = $1
  AND ($2::text = '' OR kind = $2)
  AND ($3::text = '' OR party_id = $3)
ORDER BY paid_at DESC, id DESC
LIMIT $4`, companyID, string(filter.Kind), filter.PartyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		var kind string
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Number, &p.Sequence, &p.SeriesCode, &p.Period,
			&kind, &p.PartyID, &p.Mode, &p.Amount, &p.PaidAt, &p.Remark, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Kind = PaymentKind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetInvoiceSummaries loads due amounts for allocation validation.
func (r *Repository) GetInvoiceSummaries(ctx context.Context, companyID string, ids []int64) (map[int64]InvoiceSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, party_id, kind, due_amount, issued_at
FROM invoices WHERE company_id=$1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]InvoiceSummary, len(ids))
	for rows.Next() {
		var inv InvoiceSummary
		if err := rows.Scan(&inv.ID, &inv.PartyID, &inv.Kind, &inv.Due, &inv.IssuedAt); err != nil {
			return nil, err
		}
		out[inv.ID] = inv
	}
	return out, rows.Err()
}
