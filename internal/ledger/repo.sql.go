package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed read access to ledger rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListEntries returns entries for a party ordered by (entry_date, id) so
// same-day entries fold in creation order.
func (r *Repository) ListEntries(ctx context.Context, companyID, partyID string, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, party_id, entry_date, kind, debit, credit, ref_kind, ref_id, memo, created_at
FROM ledger_entries
WHERE company_id = $1 AND party_id = $2
  AND ($3::timestamptz IS NULL OR entry_date >= $3)
  AND ($4::timestamptz IS NULL OR entry_date <= $4)
ORDER BY entry_date, id`, companyID, partyID, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.PartyID, &e.EntryDate, &e.Kind, &e.Debit, &e.Credit, &e.RefKind, &e.RefID, &e.Memo, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumBefore totals debits and credits strictly before the given date.
func (r *Repository) SumBefore(ctx context.Context, companyID, partyID string, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
FROM ledger_entries
WHERE company_id = $1 AND party_id = $2 AND entry_date < $3`, companyID, partyID, before).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

// Outstanding lists invoices with a remaining due amount, largest first.
func (r *Repository) Outstanding(ctx context.Context, companyID string) ([]OutstandingRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.number, i.party_id, p.name, i.kind, i.grand_total, i.paid_amount, i.due_amount, i.issued_at
FROM invoices i
JOIN parties p ON p.id = i.party_id
WHERE i.company_id = $1 AND i.due_amount > 0
ORDER BY i.due_amount DESC, i.issued_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutstandingRow
	for rows.Next() {
		var row OutstandingRow
		if err := rows.Scan(&row.InvoiceID, &row.Number, &row.PartyID, &row.PartyName, &row.Kind, &row.GrandTotal, &row.Paid, &row.Due, &row.IssuedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
