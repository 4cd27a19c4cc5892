package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/shared"
)

// Sentinel errors for the stock ledger.
var (
	// ErrItemNotFound indicates the item master row is missing.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrInsufficientStock indicates a decrease would drive quantity negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidKind indicates a movement kind outside the closed set.
	ErrInvalidKind = errors.New("inventory: invalid movement kind")
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateItem(ctx context.Context, item Item) (*Item, error)
	GetItem(ctx context.Context, companyID string, id int64) (*Item, error)
	ListItems(ctx context.Context, companyID string) ([]Item, error)
	ListMovements(ctx context.Context, companyID string, filter MovementFilter) ([]Movement, error)
	InsertOrphanMovement(ctx context.Context, movement Movement) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	// AdjustOnHand applies the signed delta as one conditional update:
	// negative deltas require on_hand >= |delta| in the same statement,
	// closing the check-then-write race. Returns quantities before and
	// after, or ErrItemNotFound / ErrInsufficientStock.
	AdjustOnHand(ctx context.Context, companyID string, itemID int64, delta decimal.Decimal) (prev, next decimal.Decimal, err error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the only path allowed to mutate an item's on-hand quantity.
// Every successful change appends exactly one movement row.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Increase adds qty to an item's on-hand quantity. qty must be positive.
func (s *Service) Increase(ctx context.Context, tenantID string, itemID int64, qty decimal.Decimal, kind MovementKind, ref *Ref) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	return s.move(ctx, tenantID, itemID, qty, kind, ref)
}

// Decrease removes qty from an item's on-hand quantity. Fails with
// ErrInsufficientStock when the conditional update finds less than qty
// available; concurrent decreases cannot drive the quantity negative.
func (s *Service) Decrease(ctx context.Context, tenantID string, itemID int64, qty decimal.Decimal, kind MovementKind, ref *Ref) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	return s.move(ctx, tenantID, itemID, qty.Neg(), kind, ref)
}

func (s *Service) move(ctx context.Context, tenantID string, itemID int64, delta decimal.Decimal, kind MovementKind, ref *Ref) (decimal.Decimal, error) {
	if tenantID == "" {
		return decimal.Zero, shared.ErrTenantRequired
	}
	if delta.IsZero() {
		return decimal.Zero, ErrInvalidQuantity
	}
	if !kind.Valid() {
		return decimal.Zero, ErrInvalidKind
	}
	now := time.Now().UTC()
	var newQty decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prev, next, err := tx.AdjustOnHand(ctx, tenantID, itemID, delta)
		if err != nil {
			return err
		}
		movement := Movement{
			CompanyID: tenantID,
			ItemID:    itemID,
			Delta:     delta,
			Kind:      kind,
			PrevQty:   prev,
			NewQty:    next,
			MovedAt:   now,
		}
		if ref != nil {
			movement.RefKind = ref.Kind
			movement.RefID = ref.ID
		}
		if _, err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		newQty = next
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: tenantID,
			Action:    fmt.Sprintf("inventory:%s", kind),
			Entity:    "stock_movement",
			EntityID:  fmt.Sprintf("%d", itemID),
			Meta: map[string]any{
				"item_id": itemID,
				"delta":   delta.String(),
			},
		})
	}
	return newQty, nil
}

// RecordOrphanReversal appends a compensating adjustment row for an item
// whose master record no longer exists. The quantity cannot be restored,
// but the audit trail is preserved.
func (s *Service) RecordOrphanReversal(ctx context.Context, tenantID string, itemID int64, delta decimal.Decimal, ref Ref) error {
	if tenantID == "" {
		return shared.ErrTenantRequired
	}
	return s.repo.InsertOrphanMovement(ctx, Movement{
		CompanyID: tenantID,
		ItemID:    itemID,
		Delta:     delta,
		Kind:      KindAdjustment,
		RefKind:   ref.Kind,
		RefID:     ref.ID,
		MovedAt:   time.Now().UTC(),
	})
}

// CreateItem registers a new item. A non-zero opening quantity is recorded
// through the ledger so the movement history accounts for it.
func (s *Service) CreateItem(ctx context.Context, tenantID string, input ItemInput) (*Item, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if input.Name == "" {
		return nil, errors.New("inventory: item name required")
	}
	if input.OpeningQty.IsNegative() {
		return nil, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	item, err := s.repo.CreateItem(ctx, Item{
		CompanyID:    tenantID,
		SKU:          input.SKU,
		Name:         input.Name,
		Unit:         input.Unit,
		OnHand:       decimal.Zero,
		PurchaseRate: input.PurchaseRate,
		SalesRate:    input.SalesRate,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	if input.OpeningQty.IsPositive() {
		if _, err := s.Increase(ctx, tenantID, item.ID, input.OpeningQty, KindAdjustment, nil); err != nil {
			return nil, err
		}
		item.OnHand = input.OpeningQty
	}
	return item, nil
}

// GetItem fetches an item.
func (s *Service) GetItem(ctx context.Context, tenantID string, id int64) (*Item, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.GetItem(ctx, tenantID, id)
}

// ListItems returns items for a company.
func (s *Service) ListItems(ctx context.Context, tenantID string) ([]Item, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListItems(ctx, tenantID)
}

// ListMovements returns the movement audit trail.
func (s *Service) ListMovements(ctx context.Context, tenantID string, filter MovementFilter) ([]Movement, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, tenantID, filter)
}
