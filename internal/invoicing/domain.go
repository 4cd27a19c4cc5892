package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceKind enumerates invoice directions.
type InvoiceKind string

// Invoice kinds. Sales decrease stock, purchases increase it.
const (
	KindSales    InvoiceKind = "SALES"
	KindPurchase InvoiceKind = "PURCHASE"
)

// Valid reports whether the kind belongs to the closed set.
func (k InvoiceKind) Valid() bool {
	return k == KindSales || k == KindPurchase
}

// RefKindInvoice tags stock movements and ledger entries caused by invoices.
const RefKindInvoice = "INVOICE"

// Line is a single invoice position against an item.
type Line struct {
	ID          int64
	InvoiceID   int64
	ItemID      int64
	Description string
	Qty         decimal.Decimal
	Rate        decimal.Decimal
	Amount      decimal.Decimal
}

// Invoice is a sales or purchase document. Number is composed from the
// structured fields next to it; Sequence, SeriesCode and Period are kept so
// numbering can be audited without parsing the string back apart. PaidAmount
// and DueAmount are maintained by the payment flows; due never goes below
// zero.
type Invoice struct {
	ID         int64
	CompanyID  string
	Number     string
	Sequence   int64
	SeriesCode string
	Period     string
	Kind       InvoiceKind
	PartyID    string
	Mode       string
	IssuedAt   time.Time
	Lines      []Line
	SubTotal   decimal.Decimal
	Discount   decimal.Decimal
	GrandTotal decimal.Decimal
	PaidAmount decimal.Decimal
	DueAmount  decimal.Decimal
	Remark     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Recompute derives line amounts and totals. due = max(0, grand - paid).
func (inv *Invoice) Recompute() {
	sub := decimal.Zero
	for i := range inv.Lines {
		inv.Lines[i].Amount = inv.Lines[i].Qty.Mul(inv.Lines[i].Rate)
		sub = sub.Add(inv.Lines[i].Amount)
	}
	inv.SubTotal = sub
	grand := sub.Sub(inv.Discount)
	if grand.IsNegative() {
		grand = decimal.Zero
	}
	inv.GrandTotal = grand
	due := grand.Sub(inv.PaidAmount)
	if due.IsNegative() {
		due = decimal.Zero
	}
	inv.DueAmount = due
}

// LineInput for creating or replacing invoice lines.
type LineInput struct {
	ItemID      int64           `json:"item_id" validate:"required"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty" validate:"required"`
	Rate        decimal.Decimal `json:"rate"`
}

// InvoiceInput for creating or updating invoices.
type InvoiceInput struct {
	Kind     InvoiceKind     `json:"kind" validate:"required"`
	PartyID  string          `json:"party_id" validate:"required"`
	Mode     string          `json:"mode"`
	IssuedAt time.Time       `json:"issued_at"`
	Discount decimal.Decimal `json:"discount"`
	Remark   string          `json:"remark"`
	Lines    []LineInput     `json:"lines" validate:"required,min=1,dive"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Kind    InvoiceKind
	PartyID string
	From    time.Time
	To      time.Time
	Limit   int
}
