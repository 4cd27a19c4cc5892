package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind enumerates ledger entry kinds.
type EntryKind string

// Entry kinds. Reversal rows compensate earlier entries; nothing is edited
// in place.
const (
	KindOpeningBalance EntryKind = "OPENING_BALANCE"
	KindInvoice        EntryKind = "INVOICE"
	KindPayment        EntryKind = "PAYMENT"
	KindAdjustment     EntryKind = "ADJUSTMENT"
	KindReversal       EntryKind = "REVERSAL"
)

// Valid reports whether the kind belongs to the closed set.
func (k EntryKind) Valid() bool {
	switch k {
	case KindOpeningBalance, KindInvoice, KindPayment, KindAdjustment, KindReversal:
		return true
	}
	return false
}

// Entry is an immutable double-entry-style row against a party.
type Entry struct {
	ID        int64
	CompanyID string
	PartyID   string
	EntryDate time.Time
	Kind      EntryKind
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	RefKind   string
	RefID     int64
	Memo      string
	CreatedAt time.Time
}

// BalanceLine pairs an entry with the running balance after folding it.
type BalanceLine struct {
	Entry        Entry
	BalanceAfter decimal.Decimal
}

// Statement is a party's running balance over a date range.
type Statement struct {
	PartyID        string
	PartyName      string
	OpeningBalance decimal.Decimal
	Lines          []BalanceLine
	ClosingBalance decimal.Decimal
}

// OutstandingRow summarises an open invoice for receivable/payable reports.
type OutstandingRow struct {
	InvoiceID  int64
	Number     string
	PartyID    string
	PartyName  string
	Kind       string
	GrandTotal decimal.Decimal
	Paid       decimal.Decimal
	Due        decimal.Decimal
	IssuedAt   time.Time
}
