package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/ledger"
	"github.com/tidebooks/tidebooks/internal/numbering"
	"github.com/tidebooks/tidebooks/internal/shared"
)

// Sentinel errors for the payments module.
var (
	// ErrPaymentNotFound indicates the payment does not exist for the tenant.
	ErrPaymentNotFound = errors.New("payments: payment not found")
	// ErrInvoiceNotFound indicates an allocation targets a missing invoice.
	ErrInvoiceNotFound = errors.New("payments: invoice not found")
	// ErrAllocationNotFound indicates the allocation row is missing.
	ErrAllocationNotFound = errors.New("payments: allocation not found")
	// ErrAllocationExceedsPayment indicates allocations sum past the
	// payment amount.
	ErrAllocationExceedsPayment = errors.New("payments: allocations exceed payment amount")
	// ErrAllocationExceedsDue indicates an allocation larger than the
	// invoice's remaining due.
	ErrAllocationExceedsDue = errors.New("payments: allocation exceeds invoice due")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("payments: amount must be positive")
	// ErrInvalidKind indicates a payment kind outside the closed set.
	ErrInvalidKind = errors.New("payments: invalid payment kind")
	// ErrPartyMismatch indicates an allocation against another party's invoice.
	ErrPartyMismatch = errors.New("payments: invoice belongs to a different party")
	// ErrKindMismatch indicates a receipt allocated to a purchase invoice
	// or vice versa.
	ErrKindMismatch = errors.New("payments: invoice kind does not match payment direction")
)

// NumberAllocator assigns voucher numbers.
type NumberAllocator interface {
	Allocate(ctx context.Context, tenantID string, class numbering.DocumentClass, paymentMode string, effectiveDate time.Time) (numbering.Allocation, error)
}

// IdempotencyPort guards against duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPayment(ctx context.Context, companyID string, id int64) (*Payment, error)
	ListPayments(ctx context.Context, companyID string, filter PaymentFilter) ([]Payment, error)
	GetInvoiceSummaries(ctx context.Context, companyID string, ids []int64) (map[int64]InvoiceSummary, error)
}

// TxRepository exposes transactional operations used by service. Payment
// rows, allocation rows, invoice paid/due updates and the ledger entry
// commit or roll back together.
type TxRepository interface {
	InsertPayment(ctx context.Context, p *Payment) error
	DeletePayment(ctx context.Context, companyID string, id int64) error
	InsertAllocation(ctx context.Context, alloc *Allocation) error
	DeleteAllocation(ctx context.Context, paymentID, allocationID int64) error
	DeleteAllocationsForPayment(ctx context.Context, paymentID int64) error
	// ListOpenInvoices returns a party's invoices with remaining due,
	// oldest first.
	ListOpenInvoices(ctx context.Context, companyID, partyID, kind string) ([]InvoiceSummary, error)
	// ApplyToInvoice shifts an invoice's paid amount by delta. Positive
	// deltas are guarded against the remaining due in the statement;
	// negative deltas floor paid at zero.
	ApplyToInvoice(ctx context.Context, companyID string, invoiceID int64, delta decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (int64, error)
}

const idempotencyModule = "payments"

// Service owns the payment lifecycle: voucher numbering, allocation
// validation, invoice paid/due maintenance and party ledger entries.
type Service struct {
	repo    RepositoryPort
	numbers NumberAllocator
	idem    IdempotencyPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, numbers NumberAllocator, idem IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, numbers: numbers, idem: idem, logger: logger}
}

// Create records a payment and applies its allocations atomically.
// Allocations are validated before anything is written: their sum must not
// exceed the payment amount and no allocation may exceed its invoice's
// remaining due. A non-empty idempotencyKey makes retries safe; the key is
// released again if processing fails.
func (s *Service) Create(ctx context.Context, tenantID string, input PaymentInput, idempotencyKey string) (*Payment, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if !input.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := s.validateAllocations(ctx, tenantID, input); err != nil {
		return nil, err
	}

	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			return nil, err
		}
	}

	payment, err := s.create(ctx, tenantID, input)
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Error("idempotency key release failed",
					slog.String("key", idempotencyKey), slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	return payment, nil
}

func (s *Service) create(ctx context.Context, tenantID string, input PaymentInput) (*Payment, error) {
	now := time.Now().UTC()
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	alloc, err := s.numbers.Allocate(ctx, tenantID, documentClass(input.Kind), input.Mode, paidAt)
	if err != nil {
		return nil, err
	}
	payment := &Payment{
		CompanyID:  tenantID,
		Number:     alloc.Number,
		Sequence:   alloc.Sequence,
		SeriesCode: string(alloc.SeriesCode),
		Period:     alloc.Period,
		Kind:       input.Kind,
		PartyID:    input.PartyID,
		Mode:       input.Mode,
		Amount:     input.Amount,
		PaidAt:     paidAt,
		Remark:     input.Remark,
		CreatedAt:  now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		requested := make([]AllocationInput, len(input.Allocations))
		copy(requested, input.Allocations)
		if len(requested) == 0 && input.AutoAllocate {
			requested, err = s.autoAllocate(ctx, tx, tenantID, input)
			if err != nil {
				return err
			}
		}
		for _, req := range requested {
			allocation := &Allocation{
				PaymentID: payment.ID,
				InvoiceID: req.InvoiceID,
				Amount:    req.Amount,
				CreatedAt: now,
			}
			if err := tx.InsertAllocation(ctx, allocation); err != nil {
				return err
			}
			if err := tx.ApplyToInvoice(ctx, tenantID, req.InvoiceID, req.Amount); err != nil {
				return err
			}
			payment.Allocations = append(payment.Allocations, *allocation)
		}
		_, err := tx.InsertLedgerEntry(ctx, s.ledgerEntry(payment, ledger.KindPayment))
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// autoAllocate spreads the payment across the party's open invoices
// oldest first until the amount runs out.
func (s *Service) autoAllocate(ctx context.Context, tx TxRepository, tenantID string, input PaymentInput) ([]AllocationInput, error) {
	open, err := tx.ListOpenInvoices(ctx, tenantID, input.PartyID, invoiceKindFor(input.Kind))
	if err != nil {
		return nil, err
	}
	remaining := input.Amount
	var out []AllocationInput
	for _, inv := range open {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, inv.Due)
		if !take.IsPositive() {
			continue
		}
		out = append(out, AllocationInput{InvoiceID: inv.ID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return out, nil
}

func (s *Service) validateAllocations(ctx context.Context, tenantID string, input PaymentInput) error {
	if len(input.Allocations) == 0 {
		return nil
	}
	total := decimal.Zero
	ids := make([]int64, 0, len(input.Allocations))
	for _, a := range input.Allocations {
		if !a.Amount.IsPositive() {
			return ErrInvalidAmount
		}
		total = total.Add(a.Amount)
		ids = append(ids, a.InvoiceID)
	}
	if total.GreaterThan(input.Amount) {
		return ErrAllocationExceedsPayment
	}
	summaries, err := s.repo.GetInvoiceSummaries(ctx, tenantID, ids)
	if err != nil {
		return err
	}
	for _, a := range input.Allocations {
		inv, ok := summaries[a.InvoiceID]
		if !ok {
			return fmt.Errorf("%w: invoice %d", ErrInvoiceNotFound, a.InvoiceID)
		}
		if inv.PartyID != input.PartyID {
			return fmt.Errorf("%w: invoice %d", ErrPartyMismatch, a.InvoiceID)
		}
		if inv.Kind != invoiceKindFor(input.Kind) {
			return fmt.Errorf("%w: invoice %d", ErrKindMismatch, a.InvoiceID)
		}
		if a.Amount.GreaterThan(inv.Due) {
			return fmt.Errorf("%w: invoice %d", ErrAllocationExceedsDue, a.InvoiceID)
		}
	}
	return nil
}

// Delete removes a payment, rolling its allocations back out of the
// invoices and writing a compensating reversal ledger entry. Allocations
// whose invoice has since been deleted surface as warnings.
func (s *Service) Delete(ctx context.Context, tenantID string, id int64) ([]string, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	payment, err := s.repo.GetPayment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	var warnings []string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, alloc := range payment.Allocations {
			if err := tx.ApplyToInvoice(ctx, tenantID, alloc.InvoiceID, alloc.Amount.Neg()); err != nil {
				if errors.Is(err, ErrInvoiceNotFound) {
					warnings = append(warnings, fmt.Sprintf("invoice %d no longer exists; allocation not restored", alloc.InvoiceID))
					continue
				}
				return err
			}
		}
		if err := tx.DeleteAllocationsForPayment(ctx, payment.ID); err != nil {
			return err
		}
		reversal := s.ledgerEntry(payment, ledger.KindReversal)
		reversal.Debit, reversal.Credit = reversal.Credit, reversal.Debit
		reversal.Memo = fmt.Sprintf("reversal of %s", payment.Number)
		if _, err := tx.InsertLedgerEntry(ctx, reversal); err != nil {
			return err
		}
		return tx.DeletePayment(ctx, tenantID, payment.ID)
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}

// AddAllocation ties part of an existing payment's unallocated amount to
// an invoice.
func (s *Service) AddAllocation(ctx context.Context, tenantID string, paymentID int64, input AllocationInput) (*Payment, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	payment, err := s.repo.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if input.Amount.GreaterThan(payment.Unallocated()) {
		return nil, ErrAllocationExceedsPayment
	}
	summaries, err := s.repo.GetInvoiceSummaries(ctx, tenantID, []int64{input.InvoiceID})
	if err != nil {
		return nil, err
	}
	inv, ok := summaries[input.InvoiceID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	if inv.PartyID != payment.PartyID {
		return nil, ErrPartyMismatch
	}
	if inv.Kind != invoiceKindFor(payment.Kind) {
		return nil, ErrKindMismatch
	}
	if input.Amount.GreaterThan(inv.Due) {
		return nil, ErrAllocationExceedsDue
	}
	allocation := &Allocation{
		PaymentID: payment.ID,
		InvoiceID: input.InvoiceID,
		Amount:    input.Amount,
		CreatedAt: time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertAllocation(ctx, allocation); err != nil {
			return err
		}
		return tx.ApplyToInvoice(ctx, tenantID, input.InvoiceID, input.Amount)
	})
	if err != nil {
		return nil, err
	}
	payment.Allocations = append(payment.Allocations, *allocation)
	return payment, nil
}

// RemoveAllocation detaches one allocation, restoring the invoice's due.
func (s *Service) RemoveAllocation(ctx context.Context, tenantID string, paymentID, allocationID int64) (*Payment, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	payment, err := s.repo.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	var target *Allocation
	for i := range payment.Allocations {
		if payment.Allocations[i].ID == allocationID {
			target = &payment.Allocations[i]
			break
		}
	}
	if target == nil {
		return nil, ErrAllocationNotFound
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ApplyToInvoice(ctx, tenantID, target.InvoiceID, target.Amount.Neg()); err != nil && !errors.Is(err, ErrInvoiceNotFound) {
			return err
		}
		return tx.DeleteAllocation(ctx, paymentID, allocationID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetPayment(ctx, tenantID, paymentID)
}

// Get fetches a payment with its allocations.
func (s *Service) Get(ctx context.Context, tenantID string, id int64) (*Payment, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.GetPayment(ctx, tenantID, id)
}

// List returns payments for a company.
func (s *Service) List(ctx context.Context, tenantID string, filter PaymentFilter) ([]Payment, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListPayments(ctx, tenantID, filter)
}

// ledgerEntry builds the party-side entry. Receipts credit the customer's
// receivable, payments debit the supplier's payable.
func (s *Service) ledgerEntry(p *Payment, kind ledger.EntryKind) ledger.Entry {
	entry := ledger.Entry{
		CompanyID: p.CompanyID,
		PartyID:   p.PartyID,
		EntryDate: p.PaidAt,
		Kind:      kind,
		RefKind:   RefKindPayment,
		RefID:     p.ID,
		Memo:      p.Number,
	}
	if p.Kind == KindReceipt {
		entry.Credit = p.Amount
		entry.Debit = decimal.Zero
	} else {
		entry.Debit = p.Amount
		entry.Credit = decimal.Zero
	}
	return entry
}

func documentClass(kind PaymentKind) numbering.DocumentClass {
	if kind == KindPayment {
		return numbering.DocPaymentVoucher
	}
	return numbering.DocReceiptVoucher
}

// invoiceKindFor maps payment direction to the invoice kind it settles.
func invoiceKindFor(kind PaymentKind) string {
	if kind == KindPayment {
		return "PURCHASE"
	}
	return "SALES"
}
