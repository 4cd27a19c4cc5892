package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates stock movement kinds.
type MovementKind string

// Movement kinds. Compensating rollbacks and manual corrections are
// recorded as adjustments.
const (
	KindPurchase   MovementKind = "PURCHASE"
	KindSale       MovementKind = "SALE"
	KindAdjustment MovementKind = "ADJUSTMENT"
)

// Valid reports whether the kind belongs to the closed set.
func (k MovementKind) Valid() bool {
	switch k {
	case KindPurchase, KindSale, KindAdjustment:
		return true
	}
	return false
}

// Item is a stocked product. OnHand is mutated only through the stock
// ledger; no other code path may touch it.
type Item struct {
	ID           int64
	CompanyID    string
	SKU          string
	Name         string
	Unit         string
	OnHand       decimal.Decimal
	PurchaseRate decimal.Decimal
	SalesRate    decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ref points at the document that caused a movement.
type Ref struct {
	Kind string
	ID   int64
}

// Movement is an immutable audit row. Rows are never updated, only
// superseded by new compensating rows.
type Movement struct {
	ID        int64
	CompanyID string
	ItemID    int64
	Delta     decimal.Decimal
	Kind      MovementKind
	RefKind   string
	RefID     int64
	PrevQty   decimal.Decimal
	NewQty    decimal.Decimal
	MovedAt   time.Time
}

// ItemInput for creating or updating items.
type ItemInput struct {
	SKU          string
	Name         string
	Unit         string
	OpeningQty   decimal.Decimal
	PurchaseRate decimal.Decimal
	SalesRate    decimal.Decimal
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}
