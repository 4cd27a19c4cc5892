package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/inventory"
)

// StockLedger is the only stock mutation surface the synchronizer touches.
type StockLedger interface {
	Increase(ctx context.Context, tenantID string, itemID int64, qty decimal.Decimal, kind inventory.MovementKind, ref *inventory.Ref) (decimal.Decimal, error)
	Decrease(ctx context.Context, tenantID string, itemID int64, qty decimal.Decimal, kind inventory.MovementKind, ref *inventory.Ref) (decimal.Decimal, error)
	RecordOrphanReversal(ctx context.Context, tenantID string, itemID int64, delta decimal.Decimal, ref inventory.Ref) error
}

// Synchronizer keeps stock quantities consistent with invoice documents.
// All mutations go through the stock ledger, one call per line, with
// compensating adjustments when a multi-line apply fails partway.
type Synchronizer struct {
	stock  StockLedger
	logger *slog.Logger
}

// NewSynchronizer builds Synchronizer.
func NewSynchronizer(stock StockLedger, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{stock: stock, logger: logger}
}

// Apply records the invoice's stock effect line by line. Sales decrease,
// purchases increase. If any line fails, lines already applied are
// compensated in reverse order with adjustment movements and the original
// error is returned.
func (s *Synchronizer) Apply(ctx context.Context, tenantID string, inv *Invoice) error {
	if !inv.Kind.Valid() {
		return ErrInvalidKind
	}
	ref := &inventory.Ref{Kind: RefKindInvoice, ID: inv.ID}
	for i, line := range inv.Lines {
		var err error
		switch inv.Kind {
		case KindSales:
			_, err = s.stock.Decrease(ctx, tenantID, line.ItemID, line.Qty, inventory.KindSale, ref)
		case KindPurchase:
			_, err = s.stock.Increase(ctx, tenantID, line.ItemID, line.Qty, inventory.KindPurchase, ref)
		}
		if err != nil {
			s.compensate(ctx, tenantID, inv, i)
			return fmt.Errorf("invoicing: apply item %d: %w", line.ItemID, err)
		}
	}
	return nil
}

// compensate undoes lines [0, upto) in reverse order. Failures here are
// logged and skipped; the movement trail still shows the attempt.
func (s *Synchronizer) compensate(ctx context.Context, tenantID string, inv *Invoice, upto int) {
	ref := &inventory.Ref{Kind: RefKindInvoice, ID: inv.ID}
	for i := upto - 1; i >= 0; i-- {
		line := inv.Lines[i]
		var err error
		switch inv.Kind {
		case KindSales:
			_, err = s.stock.Increase(ctx, tenantID, line.ItemID, line.Qty, inventory.KindAdjustment, ref)
		case KindPurchase:
			_, err = s.stock.Decrease(ctx, tenantID, line.ItemID, line.Qty, inventory.KindAdjustment, ref)
		}
		if err != nil {
			s.logger.Error("stock compensation failed",
				slog.String("company_id", tenantID),
				slog.Int64("invoice_id", inv.ID),
				slog.Int64("item_id", line.ItemID),
				slog.Any("error", err))
		}
	}
}

// Revert undoes the invoice's stock effect with adjustment movements. A
// line whose item no longer exists is downgraded to an orphan movement row
// plus a warning so the caller can still proceed; the quantity itself is
// unrecoverable. Other per-line failures also degrade to warnings.
func (s *Synchronizer) Revert(ctx context.Context, tenantID string, inv *Invoice) ([]string, error) {
	if !inv.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	ref := inventory.Ref{Kind: RefKindInvoice, ID: inv.ID}
	var warnings []string
	for _, line := range inv.Lines {
		var err error
		delta := line.Qty
		switch inv.Kind {
		case KindSales:
			_, err = s.stock.Increase(ctx, tenantID, line.ItemID, line.Qty, inventory.KindAdjustment, &ref)
		case KindPurchase:
			delta = line.Qty.Neg()
			_, err = s.stock.Decrease(ctx, tenantID, line.ItemID, line.Qty, inventory.KindAdjustment, &ref)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, inventory.ErrItemNotFound) {
			if orphanErr := s.stock.RecordOrphanReversal(ctx, tenantID, line.ItemID, delta, ref); orphanErr != nil {
				s.logger.Error("orphan reversal failed",
					slog.String("company_id", tenantID),
					slog.Int64("item_id", line.ItemID),
					slog.Any("error", orphanErr))
			}
			warnings = append(warnings, fmt.Sprintf("item %d no longer exists; quantity not restored", line.ItemID))
			continue
		}
		s.logger.Warn("stock revert degraded",
			slog.String("company_id", tenantID),
			slog.Int64("invoice_id", inv.ID),
			slog.Int64("item_id", line.ItemID),
			slog.Any("error", err))
		warnings = append(warnings, fmt.Sprintf("item %d: %v", line.ItemID, err))
	}
	return warnings, nil
}
