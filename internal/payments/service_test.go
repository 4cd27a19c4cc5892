package payments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tidebooks/tidebooks/internal/ledger"
	"github.com/tidebooks/tidebooks/internal/numbering"
	"github.com/tidebooks/tidebooks/internal/shared"
)

const tenant = "co-1"

type invoiceRow struct {
	ID       int64
	PartyID  string
	Kind     string
	Grand    decimal.Decimal
	Paid     decimal.Decimal
	Due      decimal.Decimal
	IssuedAt time.Time
}

type memoryRepo struct {
	nextPaymentID int64
	nextAllocID   int64
	nextEntryID   int64
	payments      map[int64]*Payment
	allocations   map[int64][]Allocation
	invoices      map[int64]*invoiceRow
	entries       []ledger.Entry
}

func newMemoryRepo(invoices ...invoiceRow) *memoryRepo {
	r := &memoryRepo{
		payments:    make(map[int64]*Payment),
		allocations: make(map[int64][]Allocation),
		invoices:    make(map[int64]*invoiceRow),
	}
	for i := range invoices {
		row := invoices[i]
		r.invoices[row.ID] = &row
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) InsertPayment(ctx context.Context, p *Payment) error {
	r.nextPaymentID++
	p.ID = r.nextPaymentID
	cp := *p
	cp.Allocations = nil
	r.payments[p.ID] = &cp
	return nil
}

func (r *memoryRepo) DeletePayment(ctx context.Context, companyID string, id int64) error {
	if _, ok := r.payments[id]; !ok {
		return ErrPaymentNotFound
	}
	delete(r.payments, id)
	return nil
}

func (r *memoryRepo) InsertAllocation(ctx context.Context, alloc *Allocation) error {
	r.nextAllocID++
	alloc.ID = r.nextAllocID
	r.allocations[alloc.PaymentID] = append(r.allocations[alloc.PaymentID], *alloc)
	return nil
}

func (r *memoryRepo) DeleteAllocation(ctx context.Context, paymentID, allocationID int64) error {
	kept := r.allocations[paymentID][:0]
	found := false
	for _, a := range r.allocations[paymentID] {
		if a.ID == allocationID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return ErrAllocationNotFound
	}
	r.allocations[paymentID] = kept
	return nil
}

func (r *memoryRepo) DeleteAllocationsForPayment(ctx context.Context, paymentID int64) error {
	delete(r.allocations, paymentID)
	return nil
}

func (r *memoryRepo) ListOpenInvoices(ctx context.Context, companyID, partyID, kind string) ([]InvoiceSummary, error) {
	var out []InvoiceSummary
	for _, row := range r.invoices {
		if row.PartyID == partyID && row.Kind == kind && row.Due.IsPositive() {
			out = append(out, InvoiceSummary{ID: row.ID, PartyID: row.PartyID, Kind: row.Kind, Due: row.Due, IssuedAt: row.IssuedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out, nil
}

func (r *memoryRepo) ApplyToInvoice(ctx context.Context, companyID string, invoiceID int64, delta decimal.Decimal) error {
	row, ok := r.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	if delta.IsPositive() && row.Due.LessThan(delta) {
		return ErrAllocationExceedsDue
	}
	row.Paid = row.Paid.Add(delta)
	if row.Paid.IsNegative() {
		row.Paid = decimal.Zero
	}
	row.Due = row.Grand.Sub(row.Paid)
	if row.Due.IsNegative() {
		row.Due = decimal.Zero
	}
	return nil
}

func (r *memoryRepo) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (int64, error) {
	r.nextEntryID++
	entry.ID = r.nextEntryID
	r.entries = append(r.entries, entry)
	return entry.ID, nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, companyID string, id int64) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok || p.CompanyID != companyID {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	cp.Allocations = append([]Allocation(nil), r.allocations[id]...)
	return &cp, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, companyID string, filter PaymentFilter) ([]Payment, error) {
	var out []Payment
	for id, p := range r.payments {
		if p.CompanyID != companyID {
			continue
		}
		cp := *p
		cp.Allocations = append([]Allocation(nil), r.allocations[id]...)
		out = append(out, cp)
	}
	return out, nil
}

func (r *memoryRepo) GetInvoiceSummaries(ctx context.Context, companyID string, ids []int64) (map[int64]InvoiceSummary, error) {
	out := make(map[int64]InvoiceSummary)
	for _, id := range ids {
		if row, ok := r.invoices[id]; ok {
			out[id] = InvoiceSummary{ID: row.ID, PartyID: row.PartyID, Kind: row.Kind, Due: row.Due, IssuedAt: row.IssuedAt}
		}
	}
	return out, nil
}

type staticNumbers struct {
	seq  int64
	fail bool
}

func (n *staticNumbers) Allocate(ctx context.Context, tenantID string, class numbering.DocumentClass, paymentMode string, effectiveDate time.Time) (numbering.Allocation, error) {
	if n.fail {
		return numbering.Allocation{}, numbering.ErrAllocationFailed
	}
	series, err := numbering.SeriesFor(class, paymentMode)
	if err != nil {
		return numbering.Allocation{}, err
	}
	n.seq++
	return numbering.Allocation{
		Number:     fmt.Sprintf("AC-%s-%04d-2025", series, n.seq),
		Sequence:   n.seq,
		SeriesCode: series,
		Period:     "2025",
	}, nil
}

type fakeIdem struct {
	keys map[string]bool
}

func (f *fakeIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func amount(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func day(d int) time.Time {
	return time.Date(2025, time.June, d, 0, 0, 0, 0, time.UTC)
}

func salesRow(id int64, due int64, issued time.Time) invoiceRow {
	return invoiceRow{ID: id, PartyID: "cust", Kind: "SALES", Grand: amount(due), Due: amount(due), IssuedAt: issued}
}

func fixture(invoices ...invoiceRow) (*Service, *memoryRepo, *staticNumbers, *fakeIdem) {
	repo := newMemoryRepo(invoices...)
	numbers := &staticNumbers{}
	idem := &fakeIdem{keys: make(map[string]bool)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, numbers, idem, logger), repo, numbers, idem
}

func receiptInput(total int64, allocs ...AllocationInput) PaymentInput {
	return PaymentInput{Kind: KindReceipt, PartyID: "cust", Amount: amount(total), Allocations: allocs}
}

func TestCreateReceiptAppliesAllocations(t *testing.T) {
	svc, repo, _, _ := fixture(salesRow(1, 600, day(1)), salesRow(2, 500, day(2)))

	payment, err := svc.Create(context.Background(), tenant, receiptInput(1000,
		AllocationInput{InvoiceID: 1, Amount: amount(600)},
		AllocationInput{InvoiceID: 2, Amount: amount(400)},
	), "")
	require.NoError(t, err)
	require.Equal(t, "AC-RV-0001-2025", payment.Number)
	// The voucher keeps its structured numbering fields.
	require.Equal(t, int64(1), payment.Sequence)
	require.Equal(t, "RV", payment.SeriesCode)
	require.Equal(t, "2025", payment.Period)
	require.Len(t, payment.Allocations, 2)
	require.True(t, payment.Unallocated().IsZero())

	stored, err := repo.GetPayment(context.Background(), tenant, payment.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Sequence)
	require.Equal(t, "RV", stored.SeriesCode)
	require.Equal(t, "2025", stored.Period)

	require.True(t, repo.invoices[1].Due.IsZero())
	require.True(t, repo.invoices[1].Paid.Equal(amount(600)))
	require.True(t, repo.invoices[2].Due.Equal(amount(100)))

	require.Len(t, repo.entries, 1)
	require.Equal(t, ledger.KindPayment, repo.entries[0].Kind)
	require.True(t, repo.entries[0].Credit.Equal(amount(1000)))
	require.Equal(t, RefKindPayment, repo.entries[0].RefKind)
	require.Equal(t, payment.ID, repo.entries[0].RefID)
}

func TestCreateRejectsOverAllocation(t *testing.T) {
	svc, repo, _, _ := fixture(salesRow(1, 600, day(1)), salesRow(2, 500, day(2)))

	// 600 + 500 exceeds the 1000 received; nothing may be written.
	_, err := svc.Create(context.Background(), tenant, receiptInput(1000,
		AllocationInput{InvoiceID: 1, Amount: amount(600)},
		AllocationInput{InvoiceID: 2, Amount: amount(500)},
	), "")
	require.ErrorIs(t, err, ErrAllocationExceedsPayment)
	require.Empty(t, repo.payments)
	require.Empty(t, repo.entries)
	require.True(t, repo.invoices[1].Due.Equal(amount(600)))
	require.True(t, repo.invoices[2].Due.Equal(amount(500)))
}

func TestCreateRejectsAllocationOverDue(t *testing.T) {
	svc, repo, _, _ := fixture(salesRow(1, 100, day(1)))

	_, err := svc.Create(context.Background(), tenant, receiptInput(500,
		AllocationInput{InvoiceID: 1, Amount: amount(200)},
	), "")
	require.ErrorIs(t, err, ErrAllocationExceedsDue)
	require.Empty(t, repo.payments)
}

func TestCreateUnknownInvoice(t *testing.T) {
	svc, _, _, _ := fixture()
	_, err := svc.Create(context.Background(), tenant, receiptInput(100,
		AllocationInput{InvoiceID: 404, Amount: amount(100)},
	), "")
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestCreateKindMismatch(t *testing.T) {
	purchase := invoiceRow{ID: 1, PartyID: "cust", Kind: "PURCHASE", Grand: amount(300), Due: amount(300), IssuedAt: day(1)}
	svc, _, _, _ := fixture(purchase)

	_, err := svc.Create(context.Background(), tenant, receiptInput(300,
		AllocationInput{InvoiceID: 1, Amount: amount(300)},
	), "")
	require.ErrorIs(t, err, ErrKindMismatch)
}

func TestAutoAllocateOldestFirst(t *testing.T) {
	svc, repo, _, _ := fixture(
		salesRow(3, 500, day(3)),
		salesRow(1, 300, day(1)),
		salesRow(2, 400, day(2)),
	)

	input := receiptInput(600)
	input.AutoAllocate = true
	payment, err := svc.Create(context.Background(), tenant, input, "")
	require.NoError(t, err)
	require.Len(t, payment.Allocations, 2)
	require.Equal(t, int64(1), payment.Allocations[0].InvoiceID)
	require.True(t, payment.Allocations[0].Amount.Equal(amount(300)))
	require.Equal(t, int64(2), payment.Allocations[1].InvoiceID)
	require.True(t, payment.Allocations[1].Amount.Equal(amount(300)))

	require.True(t, repo.invoices[1].Due.IsZero())
	require.True(t, repo.invoices[2].Due.Equal(amount(100)))
	require.True(t, repo.invoices[3].Due.Equal(amount(500)))
}

func TestCreateIdempotency(t *testing.T) {
	svc, _, numbers, idem := fixture(salesRow(1, 600, day(1)))
	ctx := context.Background()

	// A failed attempt must release the key so the retry can proceed.
	numbers.fail = true
	_, err := svc.Create(ctx, tenant, receiptInput(100), "key-1")
	require.Error(t, err)
	require.False(t, idem.keys["key-1"])

	numbers.fail = false
	_, err = svc.Create(ctx, tenant, receiptInput(100), "key-1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, tenant, receiptInput(100), "key-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestDeleteRestoresInvoiceDue(t *testing.T) {
	svc, repo, _, _ := fixture(salesRow(1, 600, day(1)))
	ctx := context.Background()

	payment, err := svc.Create(ctx, tenant, receiptInput(600,
		AllocationInput{InvoiceID: 1, Amount: amount(600)},
	), "")
	require.NoError(t, err)
	require.True(t, repo.invoices[1].Due.IsZero())

	warnings, err := svc.Delete(ctx, tenant, payment.ID)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.True(t, repo.invoices[1].Due.Equal(amount(600)))
	require.True(t, repo.invoices[1].Paid.IsZero())

	_, err = svc.Get(ctx, tenant, payment.ID)
	require.ErrorIs(t, err, ErrPaymentNotFound)

	// Original entry plus reversal cancel out.
	require.Len(t, repo.entries, 2)
	require.Equal(t, ledger.KindReversal, repo.entries[1].Kind)
	require.True(t, repo.entries[0].Credit.Equal(repo.entries[1].Debit))
}

func TestDeleteWithMissingInvoiceWarns(t *testing.T) {
	svc, repo, _, _ := fixture(salesRow(1, 600, day(1)))
	ctx := context.Background()

	payment, err := svc.Create(ctx, tenant, receiptInput(600,
		AllocationInput{InvoiceID: 1, Amount: amount(600)},
	), "")
	require.NoError(t, err)

	delete(repo.invoices, 1)

	warnings, err := svc.Delete(ctx, tenant, payment.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "invoice 1")
}

func TestAddAndRemoveAllocation(t *testing.T) {
	svc, repo, _, _ := fixture(salesRow(1, 600, day(1)), salesRow(2, 500, day(2)))
	ctx := context.Background()

	payment, err := svc.Create(ctx, tenant, receiptInput(1000,
		AllocationInput{InvoiceID: 1, Amount: amount(600)},
	), "")
	require.NoError(t, err)
	require.True(t, payment.Unallocated().Equal(amount(400)))

	payment, err = svc.AddAllocation(ctx, tenant, payment.ID, AllocationInput{InvoiceID: 2, Amount: amount(400)})
	require.NoError(t, err)
	require.True(t, payment.Unallocated().IsZero())
	require.True(t, repo.invoices[2].Due.Equal(amount(100)))

	// Nothing left to allocate.
	_, err = svc.AddAllocation(ctx, tenant, payment.ID, AllocationInput{InvoiceID: 2, Amount: amount(50)})
	require.ErrorIs(t, err, ErrAllocationExceedsPayment)

	removed, err := svc.RemoveAllocation(ctx, tenant, payment.ID, payment.Allocations[1].ID)
	require.NoError(t, err)
	require.Len(t, removed.Allocations, 1)
	require.True(t, repo.invoices[2].Due.Equal(amount(500)))
}

func TestCreateValidatesAmountAndKind(t *testing.T) {
	svc, _, _, _ := fixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, tenant, PaymentInput{Kind: "TRANSFER", PartyID: "p", Amount: amount(10)}, "")
	require.ErrorIs(t, err, ErrInvalidKind)

	_, err = svc.Create(ctx, tenant, PaymentInput{Kind: KindReceipt, PartyID: "p", Amount: decimal.Zero}, "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Create(ctx, "", PaymentInput{Kind: KindReceipt, PartyID: "p", Amount: amount(10)}, "")
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}
