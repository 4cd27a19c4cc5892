package invoicing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tidebooks/tidebooks/internal/inventory"
)

const tenant = "co-1"

type fakeStock struct {
	qty       map[int64]decimal.Decimal
	movements []inventory.Movement
	orphans   []inventory.Movement
}

func newFakeStock(levels map[int64]int64) *fakeStock {
	qty := make(map[int64]decimal.Decimal, len(levels))
	for id, n := range levels {
		qty[id] = decimal.NewFromInt(n)
	}
	return &fakeStock{qty: qty}
}

func (f *fakeStock) Increase(ctx context.Context, tenantID string, itemID int64, qty decimal.Decimal, kind inventory.MovementKind, ref *inventory.Ref) (decimal.Decimal, error) {
	return f.move(tenantID, itemID, qty, kind, ref)
}

func (f *fakeStock) Decrease(ctx context.Context, tenantID string, itemID int64, qty decimal.Decimal, kind inventory.MovementKind, ref *inventory.Ref) (decimal.Decimal, error) {
	return f.move(tenantID, itemID, qty.Neg(), kind, ref)
}

func (f *fakeStock) move(tenantID string, itemID int64, delta decimal.Decimal, kind inventory.MovementKind, ref *inventory.Ref) (decimal.Decimal, error) {
	have, ok := f.qty[itemID]
	if !ok {
		return decimal.Zero, inventory.ErrItemNotFound
	}
	next := have.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, inventory.ErrInsufficientStock
	}
	f.qty[itemID] = next
	movement := inventory.Movement{CompanyID: tenantID, ItemID: itemID, Delta: delta, Kind: kind, PrevQty: have, NewQty: next}
	if ref != nil {
		movement.RefKind = ref.Kind
		movement.RefID = ref.ID
	}
	f.movements = append(f.movements, movement)
	return next, nil
}

func (f *fakeStock) RecordOrphanReversal(ctx context.Context, tenantID string, itemID int64, delta decimal.Decimal, ref inventory.Ref) error {
	f.orphans = append(f.orphans, inventory.Movement{
		CompanyID: tenantID, ItemID: itemID, Delta: delta,
		Kind: inventory.KindAdjustment, RefKind: ref.Kind, RefID: ref.ID,
	})
	return nil
}

func (f *fakeStock) level(itemID int64) decimal.Decimal { return f.qty[itemID] }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func qtyOf(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func salesInvoice(id int64, lines ...Line) *Invoice {
	return &Invoice{ID: id, CompanyID: tenant, Kind: KindSales, Lines: lines}
}

func TestApplySalesDecreasesStock(t *testing.T) {
	stock := newFakeStock(map[int64]int64{1: 50, 2: 20})
	sync := NewSynchronizer(stock, discardLogger())
	inv := salesInvoice(7,
		Line{ItemID: 1, Qty: qtyOf(5)},
		Line{ItemID: 2, Qty: qtyOf(3)},
	)

	require.NoError(t, sync.Apply(context.Background(), tenant, inv))
	require.True(t, stock.level(1).Equal(qtyOf(45)))
	require.True(t, stock.level(2).Equal(qtyOf(17)))
	require.Len(t, stock.movements, 2)
	require.Equal(t, RefKindInvoice, stock.movements[0].RefKind)
	require.Equal(t, int64(7), stock.movements[0].RefID)
	require.Equal(t, inventory.KindSale, stock.movements[0].Kind)
}

func TestApplyPurchaseIncreasesStock(t *testing.T) {
	stock := newFakeStock(map[int64]int64{1: 10})
	sync := NewSynchronizer(stock, discardLogger())
	inv := &Invoice{ID: 8, CompanyID: tenant, Kind: KindPurchase, Lines: []Line{{ItemID: 1, Qty: qtyOf(4)}}}

	require.NoError(t, sync.Apply(context.Background(), tenant, inv))
	require.True(t, stock.level(1).Equal(qtyOf(14)))
	require.Equal(t, inventory.KindPurchase, stock.movements[0].Kind)
}

func TestApplyCompensatesPartialFailure(t *testing.T) {
	// Third line exceeds stock; the first two must be undone and the
	// original error surfaced.
	stock := newFakeStock(map[int64]int64{1: 50, 2: 20, 3: 1})
	sync := NewSynchronizer(stock, discardLogger())
	inv := salesInvoice(9,
		Line{ItemID: 1, Qty: qtyOf(5)},
		Line{ItemID: 2, Qty: qtyOf(3)},
		Line{ItemID: 3, Qty: qtyOf(2)},
	)

	err := sync.Apply(context.Background(), tenant, inv)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.True(t, stock.level(1).Equal(qtyOf(50)))
	require.True(t, stock.level(2).Equal(qtyOf(20)))
	require.True(t, stock.level(3).Equal(qtyOf(1)))
	// Two applies plus two compensations, newest compensation first.
	require.Len(t, stock.movements, 4)
	require.Equal(t, inventory.KindAdjustment, stock.movements[2].Kind)
	require.Equal(t, int64(2), stock.movements[2].ItemID)
	require.Equal(t, int64(1), stock.movements[3].ItemID)
}

func TestApplyRejectsInvalidKind(t *testing.T) {
	stock := newFakeStock(map[int64]int64{1: 50})
	sync := NewSynchronizer(stock, discardLogger())
	inv := &Invoice{ID: 1, CompanyID: tenant, Kind: "TRANSFER", Lines: []Line{{ItemID: 1, Qty: qtyOf(5)}}}

	require.ErrorIs(t, sync.Apply(context.Background(), tenant, inv), ErrInvalidKind)
	require.Empty(t, stock.movements)
}

func TestRevertRestoresStock(t *testing.T) {
	stock := newFakeStock(map[int64]int64{1: 45})
	sync := NewSynchronizer(stock, discardLogger())
	inv := salesInvoice(7, Line{ItemID: 1, Qty: qtyOf(5)})

	warnings, err := sync.Revert(context.Background(), tenant, inv)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.True(t, stock.level(1).Equal(qtyOf(50)))
	require.Equal(t, inventory.KindAdjustment, stock.movements[0].Kind)
}

func TestRevertMissingItemDowngradesToWarning(t *testing.T) {
	// Item 2 has been deleted since the invoice was posted. The revert
	// still succeeds: item 1 is restored, item 2 gets an orphan row.
	stock := newFakeStock(map[int64]int64{1: 45})
	sync := NewSynchronizer(stock, discardLogger())
	inv := salesInvoice(7,
		Line{ItemID: 1, Qty: qtyOf(5)},
		Line{ItemID: 2, Qty: qtyOf(3)},
	)

	warnings, err := sync.Revert(context.Background(), tenant, inv)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "item 2")
	require.True(t, stock.level(1).Equal(qtyOf(50)))
	require.Len(t, stock.orphans, 1)
	require.True(t, stock.orphans[0].Delta.Equal(qtyOf(3)))
	require.Equal(t, int64(7), stock.orphans[0].RefID)
}

func TestRevertPurchaseWithSoldOutStockWarns(t *testing.T) {
	// Goods from the purchase were sold on; decreasing below zero is not
	// allowed, so the revert degrades to a warning.
	stock := newFakeStock(map[int64]int64{1: 2})
	sync := NewSynchronizer(stock, discardLogger())
	inv := &Invoice{ID: 3, CompanyID: tenant, Kind: KindPurchase, Lines: []Line{{ItemID: 1, Qty: qtyOf(5)}}}

	warnings, err := sync.Revert(context.Background(), tenant, inv)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.True(t, stock.level(1).Equal(qtyOf(2)))
}
