package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind enumerates payment directions.
type PaymentKind string

// Payment kinds. Receipts collect from customers, payments settle
// suppliers.
const (
	KindReceipt PaymentKind = "RECEIPT"
	KindPayment PaymentKind = "PAYMENT"
)

// Valid reports whether the kind belongs to the closed set.
func (k PaymentKind) Valid() bool {
	return k == KindReceipt || k == KindPayment
}

// RefKindPayment tags ledger entries caused by payments.
const RefKindPayment = "PAYMENT"

// Allocation ties a slice of a payment to one invoice.
type Allocation struct {
	ID        int64
	PaymentID int64
	InvoiceID int64
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Payment is a receipt or payment voucher with its allocations. The voucher
// number keeps its structured parts (sequence, series, period) alongside the
// composed string.
type Payment struct {
	ID          int64
	CompanyID   string
	Number      string
	Sequence    int64
	SeriesCode  string
	Period      string
	Kind        PaymentKind
	PartyID     string
	Mode        string
	Amount      decimal.Decimal
	PaidAt      time.Time
	Remark      string
	Allocations []Allocation
	CreatedAt   time.Time
}

// Allocated sums the payment's allocations.
func (p *Payment) Allocated() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// Unallocated is the portion of the payment not yet tied to an invoice.
func (p *Payment) Unallocated() decimal.Decimal {
	return p.Amount.Sub(p.Allocated())
}

// AllocationInput requests one allocation during payment creation.
type AllocationInput struct {
	InvoiceID int64           `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
}

// PaymentInput for creating payments. With AutoAllocate set and no
// explicit allocations, the amount spreads across open invoices oldest
// first.
type PaymentInput struct {
	Kind         PaymentKind       `json:"kind" validate:"required"`
	PartyID      string            `json:"party_id" validate:"required"`
	Mode         string            `json:"mode"`
	Amount       decimal.Decimal   `json:"amount" validate:"required"`
	PaidAt       time.Time         `json:"paid_at"`
	Remark       string            `json:"remark"`
	Allocations  []AllocationInput `json:"allocations"`
	AutoAllocate bool              `json:"auto_allocate"`
}

// InvoiceSummary is the slice of an invoice the allocator needs.
type InvoiceSummary struct {
	ID       int64
	PartyID  string
	Kind     string
	Due      decimal.Decimal
	IssuedAt time.Time
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	Kind    PaymentKind
	PartyID string
	Limit   int
}
