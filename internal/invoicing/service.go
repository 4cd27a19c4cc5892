package invoicing

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

// Sentinel errors for the invoicing module.
var (
	// ErrInvoiceNotFound indicates the invoice does not exist for the tenant.
	ErrInvoiceNotFound = errors.New("invoicing: invoice not found")
	// ErrInvalidKind indicates an invoice kind outside the closed set.
	ErrInvalidKind = errors.New("invoicing: invalid invoice kind")
	// ErrNoLines indicates an invoice without lines.
	ErrNoLines = errors.New("invoicing: invoice requires at least one line")
	// ErrInvalidQty indicates a zero or negative line quantity.
	ErrInvalidQty = errors.New("invoicing: line quantity must be positive")
	// ErrRestoreFailed indicates an update failed and the prior document
	// state could not be restored. Manual intervention is required.
	ErrRestoreFailed = errors.New("invoicing: update failed and prior state could not be restored")
)

// NumberAllocator assigns document numbers.
type NumberAllocator interface {
	Allocate(ctx context.Context, tenantID string, class numbering.DocumentClass, paymentMode string, effectiveDate time.Time) (numbering.Allocation, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, companyID string, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, companyID string, filter InvoiceFilter) ([]Invoice, error)
}

// TxRepository exposes transactional operations used by service. The
// document row and its ledger entry commit or roll back together.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv *Invoice) error
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	DeleteInvoice(ctx context.Context, companyID string, id int64) error
	InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (int64, error)
	DeleteLedgerEntriesForRef(ctx context.Context, companyID, refKind string, refID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the invoice lifecycle: numbering, document persistence,
// party ledger entries, and stock synchronization.
type Service struct {
	repo    RepositoryPort
	numbers NumberAllocator
	sync    *Synchronizer
	audit   AuditPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, numbers NumberAllocator, sync *Synchronizer, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, numbers: numbers, sync: sync, audit: audit, logger: logger}
}

// Create persists a new invoice. The number is allocated first, then the
// document row and its ledger entry commit in one transaction, then the
// stock effect is applied. If the stock apply fails the document and entry
// are removed again; the allocated number is never reused.
func (s *Service) Create(ctx context.Context, tenantID string, input InvoiceInput) (*Invoice, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	inv, err := s.buildInvoice(tenantID, input)
	if err != nil {
		return nil, err
	}
	alloc, err := s.numbers.Allocate(ctx, tenantID, documentClass(inv.Kind), inv.Mode, inv.IssuedAt)
	if err != nil {
		return nil, err
	}
	inv.Number = alloc.Number
	inv.Sequence = alloc.Sequence
	inv.SeriesCode = string(alloc.SeriesCode)
	inv.Period = alloc.Period

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		_, err := tx.InsertLedgerEntry(ctx, s.ledgerEntry(inv, ledger.KindInvoice))
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.sync.Apply(ctx, tenantID, inv); err != nil {
		if dropErr := s.dropDocument(ctx, tenantID, inv.ID); dropErr != nil {
			s.logger.Error("invoice cleanup after failed stock apply",
				slog.Int64("invoice_id", inv.ID), slog.Any("error", dropErr))
		}
		return nil, err
	}

	s.record(ctx, tenantID, "invoice:create", inv)
	return inv, nil
}

// Update replaces an invoice's content. The stored effect is reverted, the
// new document and ledger entry are persisted, then the new effect is
// applied. If the new effect cannot be applied the prior document and its
// effect are restored; only when that restoration itself fails does the
// caller see ErrRestoreFailed.
func (s *Service) Update(ctx context.Context, tenantID string, id int64, input InvoiceInput) (*Invoice, []string, error) {
	if tenantID == "" {
		return nil, nil, shared.ErrTenantRequired
	}
	prior, err := s.repo.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	next, err := s.buildInvoice(tenantID, input)
	if err != nil {
		return nil, nil, err
	}
	// The kind, numbering fields and payment history stay with the document.
	next.ID = prior.ID
	next.Kind = prior.Kind
	next.Number = prior.Number
	next.Sequence = prior.Sequence
	next.SeriesCode = prior.SeriesCode
	next.Period = prior.Period
	next.PaidAmount = prior.PaidAmount
	next.CreatedAt = prior.CreatedAt
	next.Recompute()

	warnings, err := s.sync.Revert(ctx, tenantID, prior)
	if err != nil {
		return nil, nil, err
	}

	// Ledger entries are never edited in place: the prior entry stays, a
	// reversal cancels it, and the new content gets its own entry.
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateInvoice(ctx, next); err != nil {
			return err
		}
		if _, err := tx.InsertLedgerEntry(ctx, s.reversalEntry(prior)); err != nil {
			return err
		}
		_, err := tx.InsertLedgerEntry(ctx, s.ledgerEntry(next, ledger.KindInvoice))
		return err
	})
	if err != nil {
		// The transaction rolled back whole; only the stock effect
		// reverted above needs to come back.
		if applyErr := s.sync.Apply(ctx, tenantID, prior); applyErr != nil {
			return nil, warnings, fmt.Errorf("%w: %v (update error: %v)", ErrRestoreFailed, applyErr, err)
		}
		return nil, warnings, err
	}

	if err := s.sync.Apply(ctx, tenantID, next); err != nil {
		if restoreErr := s.restore(ctx, tenantID, prior, next); restoreErr != nil {
			return nil, warnings, fmt.Errorf("%w: %v (apply error: %v)", ErrRestoreFailed, restoreErr, err)
		}
		return nil, warnings, err
	}

	s.record(ctx, tenantID, "invoice:update", next)
	return next, warnings, nil
}

// Delete reverts the invoice's stock effect, writes a compensating
// reversal ledger entry, and removes the document. Items that vanished
// since the invoice was posted surface as warnings, not failures.
func (s *Service) Delete(ctx context.Context, tenantID string, id int64) ([]string, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	inv, err := s.repo.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	warnings, err := s.sync.Revert(ctx, tenantID, inv)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.InsertLedgerEntry(ctx, s.reversalEntry(inv)); err != nil {
			return err
		}
		return tx.DeleteInvoice(ctx, tenantID, id)
	})
	if err != nil {
		return warnings, err
	}
	s.record(ctx, tenantID, "invoice:delete", inv)
	return warnings, nil
}

// Get fetches an invoice with its lines.
func (s *Service) Get(ctx context.Context, tenantID string, id int64) (*Invoice, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.GetInvoice(ctx, tenantID, id)
}

// List returns invoices for a company.
func (s *Service) List(ctx context.Context, tenantID string, filter InvoiceFilter) ([]Invoice, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListInvoices(ctx, tenantID, filter)
}

func (s *Service) buildInvoice(tenantID string, input InvoiceInput) (*Invoice, error) {
	if !input.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if len(input.Lines) == 0 {
		return nil, ErrNoLines
	}
	now := time.Now().UTC()
	issued := input.IssuedAt
	if issued.IsZero() {
		issued = now
	}
	inv := &Invoice{
		CompanyID: tenantID,
		Kind:      input.Kind,
		PartyID:   input.PartyID,
		Mode:      input.Mode,
		IssuedAt:  issued,
		Discount:  input.Discount,
		Remark:    input.Remark,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return nil, ErrInvalidQty
		}
		if line.Rate.IsNegative() {
			return nil, errors.New("invoicing: line rate must not be negative")
		}
		inv.Lines = append(inv.Lines, Line{
			ItemID:      line.ItemID,
			Description: line.Description,
			Qty:         line.Qty,
			Rate:        line.Rate,
		})
	}
	inv.Recompute()
	return inv, nil
}

// ledgerEntry builds the party-side entry for an invoice. Sales debit the
// customer, purchases credit the supplier.
func (s *Service) ledgerEntry(inv *Invoice, kind ledger.EntryKind) ledger.Entry {
	entry := ledger.Entry{
		CompanyID: inv.CompanyID,
		PartyID:   inv.PartyID,
		EntryDate: inv.IssuedAt,
		Kind:      kind,
		RefKind:   RefKindInvoice,
		RefID:     inv.ID,
		Memo:      inv.Number,
	}
	if inv.Kind == KindSales {
		entry.Debit = inv.GrandTotal
		entry.Credit = decimal.Zero
	} else {
		entry.Debit = decimal.Zero
		entry.Credit = inv.GrandTotal
	}
	return entry
}

func (s *Service) dropDocument(ctx context.Context, tenantID string, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLedgerEntriesForRef(ctx, tenantID, RefKindInvoice, id); err != nil {
			return err
		}
		return tx.DeleteInvoice(ctx, tenantID, id)
	})
}

// reversalEntry builds the entry that cancels an invoice's posted entry:
// same amount, debit and credit swapped.
func (s *Service) reversalEntry(inv *Invoice) ledger.Entry {
	reversal := s.ledgerEntry(inv, ledger.KindReversal)
	reversal.Debit, reversal.Credit = reversal.Credit, reversal.Debit
	reversal.Memo = fmt.Sprintf("reversal of %s", inv.Number)
	return reversal
}

// restore puts the prior document back after a committed update whose stock
// apply failed. The failed content's entry is cancelled with a reversal and
// the prior content is posted again, then its stock effect is re-applied.
func (s *Service) restore(ctx context.Context, tenantID string, prior, failed *Invoice) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateInvoice(ctx, prior); err != nil {
			return err
		}
		if _, err := tx.InsertLedgerEntry(ctx, s.reversalEntry(failed)); err != nil {
			return err
		}
		_, err := tx.InsertLedgerEntry(ctx, s.ledgerEntry(prior, ledger.KindInvoice))
		return err
	})
	if err != nil {
		return err
	}
	return s.sync.Apply(ctx, tenantID, prior)
}

func documentClass(kind InvoiceKind) numbering.DocumentClass {
	if kind == KindPurchase {
		return numbering.DocPurchaseInvoice
	}
	return numbering.DocSalesInvoice
}

func (s *Service) record(ctx context.Context, tenantID, action string, inv *Invoice) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenantID,
		Action:    action,
		Entity:    "invoice",
		EntityID:  fmt.Sprintf("%d", inv.ID),
		Meta: map[string]any{
			"number":      inv.Number,
			"kind":        inv.Kind,
			"grand_total": inv.GrandTotal.String(),
		},
	})
}
